package builtin

import (
	"reflect"
	"testing"

	"github.com/rhuss/convlog/pkg/provider/providertest"
)

func TestRegistry(t *testing.T) {
	r := Registry()
	want := []string{"anthropic", "openai", "openai-chat"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}

	// Every shipped mapper carries the basic tool round trip.
	for _, name := range want {
		t.Run(name, func(t *testing.T) {
			m, err := r.Get(name)
			if err != nil {
				t.Fatal(err)
			}
			if m.Name() != name {
				t.Errorf("Name() = %q, want %q", m.Name(), name)
			}
			providertest.RoundTrip(t, m, providertest.ToolLog(t))
		})
	}
}

func TestRegistry_CrossProvider(t *testing.T) {
	r := Registry()
	log := providertest.ToolLog(t)

	p, err := r.Encode(log, "anthropic")
	if err != nil {
		t.Fatal(err)
	}
	conv, err := r.Decode(p, "anthropic")
	if err != nil {
		t.Fatal(err)
	}
	chat, err := r.Get("openai-chat")
	if err != nil {
		t.Fatal(err)
	}
	relog, err := conv.EventLog()
	if err != nil {
		t.Fatal(err)
	}
	providertest.RoundTrip(t, chat, relog)
}
