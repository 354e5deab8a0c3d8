package proxy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/randalmurphal/fedkit/common"
)

// mockProxy implements ClientProxy for testing.
type mockProxy struct {
	cid       string
	transport string
}

func (m *mockProxy) CID() string       { return m.cid }
func (m *mockProxy) Transport() string { return m.transport }

func (m *mockProxy) GetParameters(ctx context.Context) (*common.ParametersRes, error) {
	return &common.ParametersRes{}, nil
}

func (m *mockProxy) Fit(ctx context.Context, ins common.FitIns) (*common.FitRes, error) {
	return &common.FitRes{Parameters: ins.Parameters}, nil
}

func (m *mockProxy) Evaluate(ctx context.Context, ins common.EvaluateIns) (*common.EvaluateRes, error) {
	return &common.EvaluateRes{}, nil
}

func (m *mockProxy) Reconnect(ctx context.Context, ins common.Reconnect) (*common.Disconnect, error) {
	return &common.Disconnect{Reason: common.DisconnectUnknown}, nil
}

func (m *mockProxy) Close() error { return nil }

func mockFactory(transport string) Factory {
	return func(cfg Config) (ClientProxy, error) {
		return &mockProxy{cid: cfg.CID, transport: transport}, nil
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register("test", mockFactory("test"))

	if !r.IsRegistered("test") {
		t.Error("expected 'test' to be registered")
	}
	if r.IsRegistered("other") {
		t.Error("did not expect 'other' to be registered")
	}
}

func TestRegistry_Register_Panic(t *testing.T) {
	r := NewRegistry()
	r.Register("duplicate", mockFactory("duplicate"))

	defer func() {
		if rec := recover(); rec == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	r.Register("duplicate", mockFactory("duplicate2"))
}

func TestRegistry_New(t *testing.T) {
	r := NewRegistry()
	r.Register("test", mockFactory("test"))

	p, err := r.New("test", Config{Transport: "test", CID: "client-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Transport() != "test" {
		t.Errorf("expected transport 'test', got %q", p.Transport())
	}
	if p.CID() != "client-1" {
		t.Errorf("expected cid 'client-1', got %q", p.CID())
	}
}

func TestRegistry_New_UnknownTransport(t *testing.T) {
	r := NewRegistry()
	r.Register("beta", mockFactory("beta"))
	r.Register("alpha", mockFactory("alpha"))

	_, err := r.New("gamma", Config{Transport: "gamma"})
	if !errors.Is(err, ErrUnknownTransport) {
		t.Fatalf("expected ErrUnknownTransport, got %v", err)
	}
	if !strings.Contains(err.Error(), "registered: alpha, beta") {
		t.Errorf("expected registered transports in error, got %q", err)
	}
}

func TestRegistry_Available(t *testing.T) {
	r := NewRegistry()
	if got := r.Available(); len(got) != 0 {
		t.Fatalf("expected no transports, got %v", got)
	}

	r.Register("beta", mockFactory("beta"))
	r.Register("alpha", mockFactory("alpha"))

	available := r.Available()
	if len(available) != 2 {
		t.Fatalf("expected 2 transports, got %d", len(available))
	}
	if available[0] != "alpha" || available[1] != "beta" {
		t.Errorf("expected [alpha, beta], got %v", available)
	}
}

func TestNewFromConfig_UsesSharedRegistry(t *testing.T) {
	name := "registry-test-shared"
	Register(name, mockFactory(name))

	if !IsRegistered(name) {
		t.Fatal("expected shared registration")
	}
	p, err := NewFromConfig(Config{Transport: name, CID: "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Transport() != name {
		t.Errorf("expected transport %q, got %q", name, p.Transport())
	}

	found := false
	for _, n := range Available() {
		found = found || n == name
	}
	if !found {
		t.Errorf("expected %q in %v", name, Available())
	}
}
