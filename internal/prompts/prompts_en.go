package prompts

var PromptsEN = &Prompts{
	Welcome:      "Welcome user! In order to provide the most accurate responses, can you please tell me where you are growing blueberries in the format state, country?",
	LocationAck:  "Thank you for sharing that information! How can I help you today?",
	InputHint:    "Please enter a message before sending.",
	Busy:         "Please wait for the current answer to finish.",
	ExchangeFail: "Sorry, I couldn't get a response. Please try again.",

	ConsoleBanner: "berrychat: type your message and press Enter. Ctrl-D to quit.",
	ConsolePrompt: "> ",
	ConsoleBye:    "Goodbye!",
}
