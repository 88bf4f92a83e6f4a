package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/fedcoord/cli"
	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/coordinator/api"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/registry"
	"github.com/absmach/fedcoord/pkg/sdk"
	"github.com/absmach/fedcoord/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopTransport struct{}

func (nopTransport) Broadcast(context.Context, string, fl.GlobalModel, fl.RoundConfig) error {
	return nil
}

func setup(t *testing.T) coordinator.Service {
	t.Helper()

	reg, err := registry.New([]registry.Member{{ID: "c1"}, {ID: "c2"}}, 0)
	require.NoError(t, err)

	svc, err := coordinator.NewService(
		context.Background(),
		coordinator.Config{
			ExperimentID:     "cli",
			TotalRounds:      1,
			Fraction:         1,
			MinParticipants:  1,
			RoundDeadline:    time.Minute,
			BroadcastTimeout: time.Second,
		},
		reg,
		storage.NewInMemoryRepository(),
		nopTransport{},
		fl.NewFedAvgAggregator(),
		fl.NewGlobalModel(fl.Shape{"w": 1}),
		slog.New(slog.DiscardHandler),
	)
	require.NoError(t, err)

	ts := httptest.NewServer(api.MakeHandler(svc, slog.New(slog.DiscardHandler), "test"))
	t.Cleanup(ts.Close)

	cli.SetSDK(sdk.NewSDK(sdk.Config{CoordinatorURL: ts.URL}))

	return svc
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, string) {
	t.Helper()

	var out, errOut bytes.Buffer
	root := &cobra.Command{Use: "fedcoord-cli"}
	cli.AddOutputFlags(root)
	root.AddCommand(cmd)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	require.NoError(t, root.Execute())

	return out.String(), errOut.String()
}

func TestCommands(t *testing.T) {
	svc := setup(t)
	rec, err := svc.StartRound(context.Background())
	require.NoError(t, err)

	update, err := json.Marshal(fl.Update{ClientID: "c1", Round: 1, Samples: 4, Params: fl.Params{"w": {2}}})
	require.NoError(t, err)
	updateFile := filepath.Join(t.TempDir(), "update.json")
	require.NoError(t, os.WriteFile(updateFile, update, 0o600))

	cases := []struct {
		desc   string
		cmd    *cobra.Command
		args   []string
		stdout string
		stderr string
	}{
		{
			desc:   "status",
			cmd:    cli.NewStatusCmd(),
			args:   []string{"status", "--raw"},
			stdout: `"state":"COLLECTING"`,
		},
		{
			desc:   "view round",
			cmd:    cli.NewRoundsCmd(),
			args:   []string{"rounds", "view", rec.ID, "--raw"},
			stdout: rec.ID,
		},
		{
			desc:   "list clients",
			cmd:    cli.NewClientsCmd(),
			args:   []string{"clients", "list", "--limit", "1", "--raw"},
			stdout: `"total":2`,
		},
		{
			desc:   "exclude client",
			cmd:    cli.NewClientsCmd(),
			args:   []string{"clients", "exclude", "c2", "--raw"},
			stdout: `"availability":"EXCLUDED"`,
		},
		{
			desc:   "submit update",
			cmd:    cli.NewSubmitCmd(),
			args:   []string{"submit", "c1", updateFile, "--raw"},
			stdout: `"accepted":true`,
		},
		{
			desc:   "invalid model version",
			cmd:    cli.NewModelCmd(),
			args:   []string{"model", "view", "latest"},
			stderr: "invalid syntax",
		},
		{
			desc:   "missing round",
			cmd:    cli.NewRoundsCmd(),
			args:   []string{"rounds", "view", "nope"},
			stderr: "404",
		},
		{
			desc:   "usage",
			cmd:    cli.NewClientsCmd(),
			args:   []string{"clients", "view"},
			stdout: "usage: view <id>",
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			stdout, stderr := execute(t, tc.cmd, tc.args...)
			if tc.stdout != "" {
				assert.Contains(t, stdout, tc.stdout)
			}
			if tc.stderr != "" {
				assert.Contains(t, stderr, tc.stderr)
			}
		})
	}
}
