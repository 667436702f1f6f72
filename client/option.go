package client

// WithParticipant sets the participant name the client starts work items as.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithParticipant(name string) participant { //nolint
	return participant{name: name}
}

type participant struct {
	name string
}

func (o participant) configure(client *Client) {
	client.participant = o.name
}

// WithConcurrency specifies the number of goroutines executing task functions.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithConcurrency(n int) concurrency { //nolint
	return concurrency{val: n}
}

type concurrency struct {
	val int
}

func (o concurrency) configure(client *Client) {
	client.concurrency = o.val
}

// WithNoRecovery disables panic recovery for debugging.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithNoRecovery() noRecovery { //nolint
	return noRecovery{}
}

type noRecovery struct {
}

func (o noRecovery) configure(client *Client) {
	client.noRecovery = true
}

// Option represents a client option.
type Option interface {
	configure(client *Client)
}
