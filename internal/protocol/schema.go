package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	invschema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var ErrUnknownType = errors.New("protocol: unknown message type")

var messageTypes = map[string]reflect.Type{
	TypeHello:   reflect.TypeOf(HelloMsg{}),
	TypeWelcome: reflect.TypeOf(WelcomeMsg{}),
	TypeMove:    reflect.TypeOf(MoveMsg{}),
	TypeAck:     reflect.TypeOf(AckMsg{}),
	TypeState:   reflect.TypeOf(StateMsg{}),
}

// SchemaFileName is the file a message schema is published under, e.g. "move.schema.json".
func SchemaFileName(msgType string) string {
	return strings.ToLower(msgType) + ".schema.json"
}

// Schema reflects the JSON schema of a message struct. Fields without
// omitempty are required and unknown properties are rejected.
func Schema(msgType string) (*invschema.Schema, error) {
	t, ok := messageTypes[msgType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msgType)
	}
	reflector := invschema.Reflector{DoNotReference: true}
	s := reflector.ReflectFromType(t)
	if s == nil {
		return nil, fmt.Errorf("reflect %s schema", msgType)
	}
	s.Version = ""
	s.ID = ""
	s.Title = msgType
	return s, nil
}

// Schemas renders every message schema keyed by file name.
func Schemas() (map[string][]byte, error) {
	out := make(map[string][]byte, len(messageTypes))
	for _, typ := range MessageTypes() {
		s, err := Schema(typ)
		if err != nil {
			return nil, err
		}
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal %s schema: %w", typ, err)
		}
		out[SchemaFileName(typ)] = append(b, '\n')
	}
	return out, nil
}

func MessageTypes() []string {
	out := make([]string, 0, len(messageTypes))
	for typ := range messageTypes {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Validator checks raw messages against the generated schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	docs, err := Schemas()
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	v := &Validator{schemas: map[string]*jsonschema.Schema{}}
	for _, typ := range MessageTypes() {
		url := "mem://protocol/" + SchemaFileName(typ)
		if err := c.AddResource(url, bytes.NewReader(docs[SchemaFileName(typ)])); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", typ, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", typ, err)
		}
		v.schemas[typ] = s
	}
	return v, nil
}

func (v *Validator) Validate(msgType string, raw []byte) error {
	s, ok := v.schemas[msgType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, msgType)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return s.Validate(doc)
}
