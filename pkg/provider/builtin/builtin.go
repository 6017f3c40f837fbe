// Package builtin assembles the provider registry with every mapper this
// module ships.
package builtin

import (
	"github.com/rhuss/convlog/pkg/provider"
	"github.com/rhuss/convlog/pkg/provider/anthropic"
	"github.com/rhuss/convlog/pkg/provider/openai"
	"github.com/rhuss/convlog/pkg/provider/openaichat"
)

// Registry returns a registry holding the openai, openai-chat and
// anthropic mappers.
func Registry() *provider.Registry {
	return provider.NewRegistry(openai.New(), openaichat.New(), anthropic.New())
}
