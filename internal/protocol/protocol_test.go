package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   ClientEvent
		wantErr string
	}{
		{
			name:  "connect shell with password",
			event: ClientEvent{Type: EventConnectShell, Host: "10.0.0.5", Username: "root", Password: "s3cret"},
		},
		{
			name:    "connect shell missing host",
			event:   ClientEvent{Type: EventConnectShell, Username: "root"},
			wantErr: "host and username are required",
		},
		{
			name:    "connect file missing username",
			event:   ClientEvent{Type: EventConnectFile, Host: "10.0.0.5"},
			wantErr: "host and username are required",
		},
		{
			name:  "empty command is legal",
			event: ClientEvent{Type: EventCommand},
		},
		{
			name:  "list dir",
			event: ClientEvent{Type: EventListDir, Path: "/var/log"},
		},
		{
			name:    "list dir missing path",
			event:   ClientEvent{Type: EventListDir},
			wantErr: "path is required",
		},
		{
			name:    "delete missing path",
			event:   ClientEvent{Type: EventDeleteFile},
			wantErr: "path is required",
		},
		{
			name:  "rename",
			event: ClientEvent{Type: EventRenameFile, Path: "/tmp/a", NewPath: "/tmp/b"},
		},
		{
			name:    "rename missing new path",
			event:   ClientEvent{Type: EventRenameFile, Path: "/tmp/a"},
			wantErr: "path and new_path are required",
		},
		{
			name:    "save chat without payload",
			event:   ClientEvent{Type: EventSaveChat},
			wantErr: "messages payload is required",
		},
		{
			name:    "unknown type",
			event:   ClientEvent{Type: "reboot-host"},
			wantErr: `unknown event type "reboot-host"`,
		},
		{
			name:    "empty type",
			event:   ClientEvent{},
			wantErr: "unknown event type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// Outbound events omit unused fields so output chunks stay compact on the
// wire.
func TestServerEventOmitsEmptyFields(t *testing.T) {
	raw, err := json.Marshal(Output("ls -la\r\n"))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"output","data":"ls -la\r\n"}`, string(raw))

	raw, err = json.Marshal(Errorf("delete failed: %v", "permission denied"))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"error","message":"delete failed: permission denied"}`, string(raw))
}

func TestDiscardAcceptsEverything(t *testing.T) {
	require.NoError(t, Discard.Emit(Connected("ok")))
	require.NoError(t, Discard.Emit(ServerEvent{}))
}
