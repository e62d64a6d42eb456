package prompts

var PromptsES = &Prompts{
	Welcome:      "¡Bienvenido! Para darle las respuestas más precisas, ¿podría decirme dónde cultiva arándanos, en el formato estado, país?",
	LocationAck:  "¡Gracias por compartir esa información! ¿En qué puedo ayudarle hoy?",
	InputHint:    "Escriba un mensaje antes de enviarlo.",
	Busy:         "Espere a que termine la respuesta actual.",
	ExchangeFail: "Lo siento, no pude obtener una respuesta. Inténtelo de nuevo.",

	ConsoleBanner: "berrychat: escriba su mensaje y pulse Enter. Ctrl-D para salir.",
	ConsolePrompt: "> ",
	ConsoleBye:    "¡Hasta luego!",
}
