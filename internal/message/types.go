package message

import "time"

// Sender identifies who authored a transcript entry.
type Sender string

const (
	SenderUser Sender = "USER"
	SenderBot  Sender = "BOT"
)

// Kind is the payload type of a transcript entry.
type Kind string

const (
	KindText       Kind = "TEXT"
	KindFileUpload Kind = "FILE_UPLOAD"
)

// Status tracks the delivery state of a transcript entry.
// At most one block per transcript is ever StatusProcessing.
type Status string

const (
	StatusSent       Status = "SENT"
	StatusReceived   Status = "RECEIVED"
	StatusProcessing Status = "PROCESSING"
)

// Block is one transcript entry. Text changes only while Status is StatusProcessing.
type Block struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Sender     Sender    `json:"sender"`
	Kind       Kind      `json:"kind"`
	Status     Status    `json:"status"`
	FileName   string    `json:"fileName,omitempty"`   // FILE_UPLOAD only
	FileStatus string    `json:"fileStatus,omitempty"` // FILE_UPLOAD only
	CreatedAt  time.Time `json:"createdAt"`
}

// Pending reports whether the block is still waiting on an exchange.
func (b Block) Pending() bool { return b.Status == StatusProcessing }

// Helper constructors

func UserText(id, text string) Block {
	return Block{ID: id, Text: text, Sender: SenderUser, Kind: KindText, Status: StatusSent, CreatedAt: time.Now()}
}

func BotText(id, text string) Block {
	return Block{ID: id, Text: text, Sender: SenderBot, Kind: KindText, Status: StatusReceived, CreatedAt: time.Now()}
}

func BotPlaceholder(id string) Block {
	return Block{ID: id, Sender: SenderBot, Kind: KindText, Status: StatusProcessing, CreatedAt: time.Now()}
}

// CountProcessing returns how many blocks are in StatusProcessing.
func CountProcessing(blocks []Block) int {
	n := 0
	for _, b := range blocks {
		if b.Pending() {
			n++
		}
	}
	return n
}
