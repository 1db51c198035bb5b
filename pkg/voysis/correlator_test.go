package voysis

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
)

func newTestCorrelator() *correlator {
	return newCorrelator(discardLogger(), nil)
}

func TestCorrelatorNextID(t *testing.T) {
	c := newTestCorrelator()
	for _, want := range []string{"1", "2", "3"} {
		if got := c.nextID(); got != want {
			t.Errorf("nextID() = %q, want %q", got, want)
		}
	}
}

func TestCorrelatorOutOfOrderResponses(t *testing.T) {
	c := newTestCorrelator()
	got := map[string]string{}
	for _, id := range []string{"1", "2"} {
		c.Register(Key(id), func(entity json.RawMessage) {
			got[id] = string(entity)
		}, func(err error) {
			t.Errorf("request %s: unexpected error %v", id, err)
		})
	}

	c.Dispatch([]byte(`{"type":"response","requestId":"2","responseCode":200,"entity":"second"}`))
	c.Dispatch([]byte(`{"type":"response","requestId":"1","responseCode":201,"entity":"first"}`))

	if got["1"] != `"first"` || got["2"] != `"second"` {
		t.Errorf("got %v", got)
	}
	if n := c.pendingCount(); n != 0 {
		t.Errorf("pendingCount() = %d, want 0", n)
	}
}

func TestCorrelatorErrorResponse(t *testing.T) {
	c := newTestCorrelator()
	var gotErr error
	c.Register("1", func(json.RawMessage) {
		t.Error("success arm fired for 401")
	}, func(err error) {
		gotErr = err
	})

	c.Dispatch([]byte(`{"type":"response","requestId":"1","responseCode":401,"responseMessage":"Unauthorized"}`))

	e, ok := AsError(gotErr)
	if !ok {
		t.Fatalf("error = %v, want *Error", gotErr)
	}
	if e.ResponseCode != 401 || e.ResponseMessage != "Unauthorized" {
		t.Errorf("error = %+v", e)
	}
	if !e.IsAuth() {
		t.Error("IsAuth() = false for 401")
	}
}

func TestCorrelatorResolvesOnce(t *testing.T) {
	c := newTestCorrelator()
	calls := 0
	c.Register("7", func(json.RawMessage) { calls++ }, func(error) { calls++ })

	frame := []byte(`{"type":"response","requestId":"7","responseCode":200}`)
	c.Dispatch(frame)
	c.Dispatch(frame)
	c.Dispatch([]byte(`{"type":"response","requestId":"7","responseCode":500}`))

	if calls != 1 {
		t.Errorf("continuation fired %d times, want 1", calls)
	}
}

func TestCorrelatorNotifications(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		key       Key
		wantValue string
		check     func(t *testing.T, err error)
	}{
		{
			name:      "vad_stop",
			frame:     `{"type":"notification","notificationType":"vad_stop"}`,
			key:       KeyVADStop,
			wantValue: `"vad_stop"`,
		},
		{
			name:      "query_complete with entity",
			frame:     `{"type":"notification","notificationType":"query_complete","entity":{"id":"q1"}}`,
			key:       KeyAudioStream,
			wantValue: `{"id":"q1"}`,
		},
		{
			name:  "query_complete without entity",
			frame: `{"type":"notification","notificationType":"query_complete"}`,
			key:   KeyAudioStream,
		},
		{
			name:  "internal_server_error",
			frame: `{"type":"notification","notificationType":"internal_server_error"}`,
			key:   KeyAudioStream,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrServer) {
					t.Errorf("error = %v, want ErrServer", err)
				}
			},
		},
		{
			name:  "unknown",
			frame: `{"type":"notification","notificationType":"foo"}`,
			key:   KeyAudioStream,
			check: func(t *testing.T, err error) {
				var une *UnknownNotificationError
				if !errors.As(err, &une) || une.Type != "foo" {
					t.Errorf("error = %v, want UnknownNotificationError naming foo", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCorrelator()
			var observed string
			c.onNotification = func(nt string) { observed = nt }

			var got *Outcome
			c.register(tt.key, func(o Outcome) { got = &o })
			c.Dispatch([]byte(tt.frame))

			if got == nil {
				t.Fatal("continuation did not fire")
			}
			if observed == "" {
				t.Error("notification observer not called")
			}
			if tt.check != nil {
				tt.check(t, got.Err)
				return
			}
			if got.Err != nil {
				t.Fatalf("unexpected error %v", got.Err)
			}
			if string(got.Entity) != tt.wantValue {
				t.Errorf("entity = %s, want %s", got.Entity, tt.wantValue)
			}
		})
	}
}

func TestCorrelatorRegisterNothing(t *testing.T) {
	c := newTestCorrelator()
	c.Register("1", nil, nil)
	if n := c.pendingCount(); n != 0 {
		t.Errorf("pendingCount() = %d, want 0", n)
	}
}

func TestCorrelatorSingleArmConsumesKey(t *testing.T) {
	c := newTestCorrelator()
	c.Register(KeyAudioStream, func(json.RawMessage) {
		t.Error("success arm fired for error outcome")
	}, nil)

	c.Dispatch([]byte(`{"type":"notification","notificationType":"internal_server_error"}`))

	if n := c.pendingCount(); n != 0 {
		t.Errorf("pendingCount() = %d, want 0", n)
	}
}

func TestCorrelatorCancelOwnRegistration(t *testing.T) {
	c := newTestCorrelator()
	cancelFirst := c.register(KeyAudioStream, func(Outcome) {})
	fired := false
	c.register(KeyAudioStream, func(Outcome) { fired = true })

	if cancelFirst() {
		t.Error("cancel of a replaced registration removed the new one")
	}
	c.Dispatch([]byte(`{"type":"notification","notificationType":"query_complete"}`))
	if !fired {
		t.Error("replacement continuation did not fire")
	}
}

func TestCorrelatorDropsBadFrames(t *testing.T) {
	c := newTestCorrelator()
	c.register("1", func(Outcome) { t.Error("continuation fired for a bad frame") })

	c.Dispatch([]byte(`not json`))
	c.Dispatch([]byte(`{"type":"mystery","requestId":"1"}`))
	c.Dispatch([]byte(`{"type":"response","requestId":"99","responseCode":200}`))

	if n := c.pendingCount(); n != 1 {
		t.Errorf("pendingCount() = %d, want 1", n)
	}
}
