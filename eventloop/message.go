package eventloop

import "fmt"

// Job is the work carried by a Call message. Execute is called exactly
// once, on the loop's goroutine.
type Job interface {
	Execute() error
}

// Kind discriminates messages.
type Kind uint8

const (
	KindCall Kind = iota
	KindWakeUp
	KindTerminate
)

func (k Kind) String() string {
	switch k {
	case KindCall:
		return "Call"
	case KindWakeUp:
		return "WakeUp"
	case KindTerminate:
		return "Terminate"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Message is one entry of the loop's queue.
type Message struct {
	Kind Kind
	Job  Job
}

// Call wraps job in a Call message.
func Call(job Job) Message { return Message{Kind: KindCall, Job: job} }

// WakeUp makes a blocked loop iterate without doing anything.
func WakeUp() Message { return Message{Kind: KindWakeUp} }

// Terminate stops the loop. Messages queued after it are not processed.
func Terminate() Message { return Message{Kind: KindTerminate} }

func (m Message) String() string {
	if m.Kind == KindCall {
		return fmt.Sprintf("Call(%v)", m.Job)
	}
	return m.Kind.String()
}
