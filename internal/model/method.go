package model

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Method selects the attention score function.
type Method int

const (
	// MethodDot scores h·e.
	MethodDot Method = iota + 1
	// MethodGeneral scores h·(W e + b).
	MethodGeneral
	// MethodConcat scores v·(W [h; e] + b).
	MethodConcat
)

var methodNames = map[Method]string{
	MethodDot:     "dot",
	MethodGeneral: "general",
	MethodConcat:  "concat",
}

func ParseMethod(s string) (Method, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for m, name := range methodNames {
		if name == key {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown attention method %q (want dot, general or concat)", ErrConfig, s)
}

func (m Method) Valid() bool {
	_, ok := methodNames[m]
	return ok
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

func (m Method) MarshalYAML() (any, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: unknown attention method %d", ErrConfig, m)
	}
	return m.String(), nil
}

func (m *Method) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseMethod(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
