package consumer

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/getpactd/pactd/internal/id"
	"github.com/getpactd/pactd/pkg/contract"
	"github.com/getpactd/pactd/pkg/logging"
	"github.com/getpactd/pactd/pkg/mockserver"
)

// PactBuilder accumulates interactions into a pact document.
type PactBuilder struct {
	pact *contract.Pact
	log  *slog.Logger
}

// Option customizes a PactBuilder.
type Option func(*PactBuilder)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(b *PactBuilder) {
		if log != nil {
			b.log = log
		}
	}
}

// NewPact starts a pact between a consumer and a provider.
func NewPact(consumer, provider string, opts ...Option) *PactBuilder {
	b := &PactBuilder{
		pact: contract.NewPact(consumer, provider),
		log:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithSpecVersion overrides the pact specification version.
func (b *PactBuilder) WithSpecVersion(v contract.SpecVersion) *PactBuilder {
	b.pact.Spec = v
	return b
}

// Interaction starts building one request/response interaction. The
// interaction joins the pact when its Build is called.
func (b *PactBuilder) Interaction(description string) *InteractionBuilder {
	return &InteractionBuilder{
		parent: b,
		interaction: &contract.Interaction{
			Key:         id.Short(),
			Description: description,
		},
	}
}

// Message starts building one asynchronous message.
func (b *PactBuilder) Message(description string) *MessageBuilder {
	return &MessageBuilder{
		parent: b,
		message: &contract.Message{
			Key:         id.Short(),
			Description: description,
			Metadata:    make(map[string]any),
		},
	}
}

// Pact returns the document built so far.
func (b *PactBuilder) Pact() *contract.Pact {
	return b.pact
}

// WritePact persists the pact, merging with any existing file for the same
// parties unless overwrite is set.
func (b *PactBuilder) WritePact(dir string, overwrite bool) (string, error) {
	path, err := contract.WriteFile(b.pact, dir, overwrite)
	if err != nil {
		return "", err
	}
	b.log.Info("pact written", "path", path)
	return path, nil
}

// StartMockServer serves the pact's interactions on the given port (0 for
// an ephemeral one).
func (b *PactBuilder) StartMockServer(port int) (*mockserver.Server, error) {
	server, err := mockserver.New(b.pact, mockserver.WithLogger(b.log))
	if err != nil {
		return nil, err
	}
	if _, err := server.Start(port); err != nil {
		return nil, err
	}
	return server, nil
}

// InteractionBuilder describes one expected exchange.
type InteractionBuilder struct {
	parent      *PactBuilder
	interaction *contract.Interaction
}

// Given adds a provider state.
func (ib *InteractionBuilder) Given(state string) *InteractionBuilder {
	ib.interaction.ProviderStates = append(ib.interaction.ProviderStates,
		contract.ProviderState{Name: state})
	return ib
}

// GivenWithParams adds a provider state with parameters.
func (ib *InteractionBuilder) GivenWithParams(state string, params map[string]any) *InteractionBuilder {
	ib.interaction.ProviderStates = append(ib.interaction.ProviderStates,
		contract.ProviderState{Name: state, Params: params})
	return ib
}

// UponReceiving replaces the interaction description.
func (ib *InteractionBuilder) UponReceiving(description string) *InteractionBuilder {
	ib.interaction.Description = description
	return ib
}

// WithRequest sets the request method and path.
func (ib *InteractionBuilder) WithRequest(method, path string) *InteractionBuilder {
	ib.interaction.Request.Method = method
	ib.interaction.Request.Path = path
	return ib
}

// WithQuery adds an expected query parameter.
func (ib *InteractionBuilder) WithQuery(name string, values ...string) *InteractionBuilder {
	if ib.interaction.Request.Query == nil {
		ib.interaction.Request.Query = make(map[string][]string)
	}
	ib.interaction.Request.Query[name] = append(ib.interaction.Request.Query[name], values...)
	return ib
}

// WithHeader adds an expected request header.
func (ib *InteractionBuilder) WithHeader(name, value string) *InteractionBuilder {
	if ib.interaction.Request.Headers == nil {
		ib.interaction.Request.Headers = make(map[string][]string)
	}
	ib.interaction.Request.Headers[name] = append(ib.interaction.Request.Headers[name],
		contract.ParseHeaderValue(name, value)...)
	return ib
}

// WithJSONBody sets the request body to the JSON encoding of v.
func (ib *InteractionBuilder) WithJSONBody(v any) *InteractionBuilder {
	body, err := contract.NewJSONBody(v)
	if err != nil {
		// Builders stay fluent; a value that cannot encode surfaces when
		// the interaction is exercised.
		ib.parent.log.Warn("request body failed to encode", "error", err)
		return ib
	}
	ib.interaction.Request.Body = body
	return ib
}

// WithTextBody sets the request body to a string of the given content type.
func (ib *InteractionBuilder) WithTextBody(text, contentType string) *InteractionBuilder {
	ib.interaction.Request.Body = contract.NewTextBody(text, contentType)
	return ib
}

// WithRequestRule attaches a matching rule to a request path expression.
func (ib *InteractionBuilder) WithRequestRule(category, path string, rule contract.Rule) *InteractionBuilder {
	if ib.interaction.Request.Rules == nil {
		ib.interaction.Request.Rules = contract.RuleSet{}
	}
	ib.interaction.Request.Rules.Add(category, path, rule)
	return ib
}

// WillRespondWith sets the expected response status.
func (ib *InteractionBuilder) WillRespondWith(status int) *InteractionBuilder {
	ib.interaction.Response.Status = status
	return ib
}

// WithResponseHeader adds an expected response header.
func (ib *InteractionBuilder) WithResponseHeader(name, value string) *InteractionBuilder {
	if ib.interaction.Response.Headers == nil {
		ib.interaction.Response.Headers = make(map[string][]string)
	}
	ib.interaction.Response.Headers[name] = append(ib.interaction.Response.Headers[name],
		contract.ParseHeaderValue(name, value)...)
	return ib
}

// WithResponseJSONBody sets the response body to the JSON encoding of v.
func (ib *InteractionBuilder) WithResponseJSONBody(v any) *InteractionBuilder {
	body, err := contract.NewJSONBody(v)
	if err != nil {
		ib.parent.log.Warn("response body failed to encode", "error", err)
		return ib
	}
	ib.interaction.Response.Body = body
	return ib
}

// WithResponseTextBody sets the response body to a string of the given
// content type.
func (ib *InteractionBuilder) WithResponseTextBody(text, contentType string) *InteractionBuilder {
	ib.interaction.Response.Body = contract.NewTextBody(text, contentType)
	return ib
}

// WithResponseRule attaches a matching rule to a response path expression.
func (ib *InteractionBuilder) WithResponseRule(category, path string, rule contract.Rule) *InteractionBuilder {
	if ib.interaction.Response.Rules == nil {
		ib.interaction.Response.Rules = contract.RuleSet{}
	}
	ib.interaction.Response.Rules.Add(category, path, rule)
	return ib
}

// WithTransport marks the interaction for a plugin transport.
func (ib *InteractionBuilder) WithTransport(name string) *InteractionBuilder {
	ib.interaction.Transport = name
	return ib
}

// Build validates the interaction and adds it to the pact.
func (ib *InteractionBuilder) Build() error {
	if ib.interaction.Description == "" {
		return fmt.Errorf("consumer: interaction needs a description")
	}
	if ib.interaction.Request.Method == "" && ib.interaction.Transport == "" {
		return fmt.Errorf("consumer: interaction %q has no request", ib.interaction.Description)
	}
	ib.parent.pact.Interactions = append(ib.parent.pact.Interactions, ib.interaction)
	return nil
}

// MessageBuilder describes one expected asynchronous message.
type MessageBuilder struct {
	parent  *PactBuilder
	message *contract.Message
}

// Given adds a provider state.
func (mb *MessageBuilder) Given(state string) *MessageBuilder {
	mb.message.ProviderStates = append(mb.message.ProviderStates,
		contract.ProviderState{Name: state})
	return mb
}

// ExpectsToReceive replaces the message description.
func (mb *MessageBuilder) ExpectsToReceive(description string) *MessageBuilder {
	mb.message.Description = description
	return mb
}

// WithMetadata adds a metadata entry.
func (mb *MessageBuilder) WithMetadata(key string, value any) *MessageBuilder {
	mb.message.Metadata[key] = value
	return mb
}

// SetMetadata records a string metadata entry, reporting whether the key
// already existed.
func (mb *MessageBuilder) SetMetadata(key, value string) bool {
	return mb.message.SetMetadata(key, value)
}

// MetadataValue returns the metadata value for key rendered as a string.
func (mb *MessageBuilder) MetadataValue(key string) string {
	return mb.message.MetadataString(key)
}

// MetadataKeys returns the metadata keys in sorted order.
func (mb *MessageBuilder) MetadataKeys() []string {
	return mb.message.MetadataKeys()
}

// WithJSONContents sets the message contents to the JSON encoding of v.
func (mb *MessageBuilder) WithJSONContents(v any) *MessageBuilder {
	body, err := contract.NewJSONBody(v)
	if err != nil {
		mb.parent.log.Warn("message contents failed to encode", "error", err)
		return mb
	}
	mb.message.Contents = body
	mb.message.Metadata["contentType"] = "application/json"
	return mb
}

// WithTextContents sets the message contents to a string.
func (mb *MessageBuilder) WithTextContents(text, contentType string) *MessageBuilder {
	mb.message.Contents = contract.NewTextBody(text, contentType)
	mb.message.Metadata["contentType"] = mb.message.Contents.ContentType
	return mb
}

// WithBinaryContents sets the message contents to raw bytes.
func (mb *MessageBuilder) WithBinaryContents(raw []byte, contentType string) *MessageBuilder {
	mb.message.Contents = contract.NewBinaryBody(raw, contentType)
	mb.message.Metadata["contentType"] = mb.message.Contents.ContentType
	return mb
}

// WithRule attaches a matching rule to the message contents.
func (mb *MessageBuilder) WithRule(path string, rule contract.Rule) *MessageBuilder {
	if mb.message.Rules == nil {
		mb.message.Rules = contract.RuleSet{}
	}
	mb.message.Rules.Add("body", path, rule)
	return mb
}

// Reify returns the message contents with example values, as the consumer's
// message handler would receive them.
func (mb *MessageBuilder) Reify() ([]byte, error) {
	if !mb.message.Contents.IsPresent() {
		return nil, nil
	}
	if mb.message.Contents.IsJSON() {
		value, ok := mb.message.Contents.JSONValue()
		if !ok {
			return nil, fmt.Errorf("consumer: message %q contents are not valid JSON", mb.message.Description)
		}
		return json.Marshal(value)
	}
	return mb.message.Contents.Content, nil
}

// Build validates the message and adds it to the pact.
func (mb *MessageBuilder) Build() error {
	if mb.message.Description == "" {
		return fmt.Errorf("consumer: message needs a description")
	}
	mb.parent.pact.Messages = append(mb.parent.pact.Messages, mb.message)
	return nil
}
