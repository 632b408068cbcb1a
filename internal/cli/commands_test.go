package cli

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/testutil"
	"github.com/roach88/msggate/internal/wire"
)

// gatewayEnv is a database plus a gateway file for command tests.
type gatewayEnv struct {
	db     string
	config string
}

func newGatewayEnv(t *testing.T, gateway string) gatewayEnv {
	t.Helper()
	return gatewayEnv{
		db:     filepath.Join(t.TempDir(), "gate.db"),
		config: writeGateway(t, gateway),
	}
}

func (e gatewayEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execute(t, append(args, "--db", e.db, "--config", e.config)...)
}

// admitArgs are the admit flags for testutil.NewMessage(chain, seq).
func admitArgs(chain, seq string) []string {
	return []string{"admit", "--chain", chain, "--seq", seq,
		"--sender", "sender-001", "--recipient", "recipient-001",
		"--payload", "hello", "--payload-ref", "ipfs://bafy-ref"}
}

func decodeData(t *testing.T, out string, into any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, into))
}

func decodeError(t *testing.T, out string) CLIError {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "error", resp.Status, out)
	require.NotNil(t, resp.Error)
	return *resp.Error
}

func TestInitCounterCommand(t *testing.T) {
	env := newGatewayEnv(t, openGateway)

	out, err := env.run(t, "init-counter", "42", "--requester", "relay-admin")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Counter initialized for chain 42")
	assert.Contains(t, out, "gateway gw-test")

	out, err = env.run(t, "init-counter", "42", "--requester", "relay-admin", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "ALREADY_INITIALIZED", decodeError(t, out).Code)

	out, err = env.run(t, "init-counter", "43", "--requester", "mallory")
	require.Error(t, err)
	assert.Contains(t, out, "Error [UNAUTHORIZED]")

	out, err = env.run(t, "init-counter", "0", "--requester", "relay-admin")
	require.Error(t, err)
	assert.Contains(t, out, "Error [INVALID_CHAIN_ID]")
}

func TestInitCounterCommand_ArgumentErrors(t *testing.T) {
	env := newGatewayEnv(t, openGateway)

	out, err := env.run(t, "init-counter", "42")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "--requester is required")

	_, err = env.run(t, "init-counter", "forty-two", "--requester", "relay-admin")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = env.run(t, "init-counter", "18446744073709551616", "--requester", "relay-admin")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err), "chain ids are 64-bit")
}

func TestInitCounterCommand_DisabledGateway(t *testing.T) {
	env := newGatewayEnv(t, `gateway: {
	authority:      "relay-admin"
	system_enabled: false
	signatures: enabled: false
}`)

	out, err := env.run(t, "init-counter", "1", "--requester", "relay-admin")
	require.Error(t, err)
	assert.Contains(t, out, "Error [SYSTEM_DISABLED]")
}

func TestAdmitCommand_ReplayProtection(t *testing.T) {
	env := newGatewayEnv(t, openGateway)
	_, err := env.run(t, "init-counter", "42", "--requester", "relay-admin")
	require.NoError(t, err)

	out, err := env.run(t, append(admitArgs("42", "5"), "--format", "json")...)
	require.NoError(t, err)
	var adm admission.Admission
	decodeData(t, out, &adm)
	assert.Equal(t, wire.MessageDigest(testutil.NewMessage(42, 5)), adm.Digest)
	assert.Equal(t, wire.Seq(0), adm.PreviousWatermark)
	assert.Equal(t, wire.Seq(5), adm.Watermark)
	assert.NotEmpty(t, adm.AttemptID)

	out, err = env.run(t, admitArgs("42", "5")...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [DUPLICATE_MESSAGE]")

	out, err = env.run(t, append(admitArgs("42", "3"), "--format", "json")...)
	require.Error(t, err)
	cliErr := decodeError(t, out)
	assert.Equal(t, "SEQUENCE_TOO_OLD", cliErr.Code)
	assert.Equal(t, "replay", cliErr.Class)
	assert.Equal(t, "ordering_checked", cliErr.Stage)
	assert.Equal(t, "42", cliErr.SourceChainID)
	assert.Equal(t, "3", cliErr.SequenceID)

	out, err = env.run(t, admitArgs("42", "100")...)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Admitted chain 42 sequence 100")
	assert.Contains(t, out, "watermark: 5 -> 100")

	out, err = env.run(t, "watermark", "42")
	require.NoError(t, err)
	assert.Equal(t, "chain 42: 100\n", out)
}

func TestAdmitCommand_Rejections(t *testing.T) {
	env := newGatewayEnv(t, openGateway)
	_, err := env.run(t, "init-counter", "42", "--requester", "relay-admin")
	require.NoError(t, err)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"no counter", admitArgs("7", "1"), "COUNTER_NOT_FOUND"},
		{"wrong destination", append(admitArgs("42", "1"), "--dest", "2"), "WRONG_DESTINATION"},
		{"sender too long", []string{"admit", "--chain", "42", "--seq", "1", "--hex",
			"--sender", hex.EncodeToString(testutil.Oversized(wire.MaxSenderSize, 1))}, "SENDER_TOO_LONG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := env.run(t, append(tt.args, "--format", "json")...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Equal(t, tt.code, decodeError(t, out).Code)
		})
	}

	out, err := env.run(t, "watermark", "42")
	require.NoError(t, err)
	assert.Equal(t, "chain 42: 0\n", out, "rejections leave the counter untouched")
}

func TestAdmitCommand_ArgumentErrors(t *testing.T) {
	env := newGatewayEnv(t, openGateway)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing seq", []string{"admit", "--chain", "1"}, "--seq is required"},
		{"negative seq", []string{"admit", "--chain", "1", "--seq", "-4"}, "--seq"},
		{"bad hex", []string{"admit", "--chain", "1", "--seq", "1", "--hex", "--payload", "zz"}, "--payload"},
		{"bad signature", []string{"admit", "--chain", "1", "--seq", "1", "--signature", "abcd"}, "want signer-hex:signature-hex"},
		{"negative retries", []string{"admit", "--chain", "1", "--seq", "1", "--retries", "-1"}, "--retries must be >= 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := env.run(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestAdmitCommand_Signatures(t *testing.T) {
	s1, s2 := testutil.NewSigner(1), testutil.NewSigner(2)
	env := newGatewayEnv(t, `gateway: {
	authority:     "relay-admin"
	dest_chain_id: 1
	signatures: {
		threshold: 2
		signers: ["`+s1.PublicHex()+`", "`+s2.PublicHex()+`"]
	}
}`)
	_, err := env.run(t, "init-counter", "42", "--requester", "relay-admin")
	require.NoError(t, err)

	digest := wire.MessageDigest(testutil.NewMessage(42, 1))
	sigArg := func(s testutil.Signer) string {
		return s.PublicHex() + ":" + hex.EncodeToString(s.Sign(digest).Signature)
	}

	out, err := env.run(t, append(admitArgs("42", "1"), "--signature", sigArg(s1))...)
	require.Error(t, err)
	assert.Contains(t, out, "Error [INSUFFICIENT_SIGNATURES]")

	out, err = env.run(t, append(admitArgs("42", "1"), "--signature", sigArg(testutil.NewSigner(9)), "--signature", sigArg(s2))...)
	require.Error(t, err)
	assert.Contains(t, out, "Error [UNAUTHORIZED_SIGNER]")

	_, err = env.run(t, append(admitArgs("42", "1"), "--signature", sigArg(s1), "--signature", sigArg(s2))...)
	require.NoError(t, err)
}

func TestAdmitCommand_MessageFile(t *testing.T) {
	env := newGatewayEnv(t, openGateway)
	_, err := env.run(t, "init-counter", "7", "--requester", "relay-admin")
	require.NoError(t, err)

	msg := testutil.NewMessage(7, 11)
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "msg.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	out, err := env.run(t, "admit", "--message", path, "--format", "json")
	require.NoError(t, err)
	var adm admission.Admission
	decodeData(t, out, &adm)
	assert.Equal(t, wire.MessageDigest(msg), adm.Digest)

	// Flags override the file.
	out, err = env.run(t, "admit", "-m", path, "--seq", "12", "--format", "json")
	require.NoError(t, err)
	decodeData(t, out, &adm)
	assert.Equal(t, wire.Seq(12), adm.SequenceID)
}

func TestAdmitCommand_ProductionRefusesDisabledSignatures(t *testing.T) {
	env := newGatewayEnv(t, openGateway)

	out, err := env.run(t, append(admitArgs("1", "1"), "--env", "production")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E_CONFIG]")
	assert.Contains(t, out, "cannot be disabled in production")
}

func TestAdmitCommand_WritesMetricsTextfile(t *testing.T) {
	env := newGatewayEnv(t, openGateway)
	_, err := env.run(t, "init-counter", "42", "--requester", "relay-admin")
	require.NoError(t, err)

	metricsPath := filepath.Join(t.TempDir(), "msggate.prom")
	_, err = env.run(t, append(admitArgs("42", "1"), "--metrics-file", metricsPath)...)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `msggate_admission_admitted_total{source_chain_id="42"} 1`)
}

func TestWatermarkCommand(t *testing.T) {
	env := newGatewayEnv(t, openGateway)

	out, err := env.run(t, "watermark")
	require.NoError(t, err)
	assert.Equal(t, "No counters initialized\n", out)

	out, err = env.run(t, "watermark", "5", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, "COUNTER_NOT_FOUND", decodeError(t, out).Code)

	for _, chain := range []string{"9", "2"} {
		_, err := env.run(t, "init-counter", chain, "--requester", "relay-admin")
		require.NoError(t, err)
	}
	_, err = env.run(t, admitArgs("9", "340282366920938463463374607431768211455")...)
	require.NoError(t, err)

	out, err = env.run(t, "watermark")
	require.NoError(t, err)
	assert.Equal(t, "chain 2: 0\nchain 9: 340282366920938463463374607431768211455\n", out)

	out, err = env.run(t, "watermark", "9", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "initialized by: relay-admin")
	assert.Contains(t, out, "key:            "+wire.CounterKey(9))

	out, err = env.run(t, "watermark", "--format", "json")
	require.NoError(t, err)
	var counters []admission.ChainCounter
	decodeData(t, out, &counters)
	require.Len(t, counters, 2)
	assert.Equal(t, wire.MustParseSequenceID("340282366920938463463374607431768211455"), counters[1].HighestSequenceSeen)
}

func TestRecordCommand(t *testing.T) {
	env := newGatewayEnv(t, openGateway)
	_, err := env.run(t, "init-counter", "42", "--requester", "relay-admin")
	require.NoError(t, err)
	for _, seq := range []string{"5", "100"} {
		_, err := env.run(t, admitArgs("42", seq)...)
		require.NoError(t, err)
	}

	out, err := env.run(t, "record", "42", "5", "--format", "json")
	require.NoError(t, err)
	var record admission.AdmissionRecord
	decodeData(t, out, &record)
	assert.Equal(t, wire.Seq(5), record.SequenceID)
	assert.Equal(t, wire.RecordKey(42, wire.Seq(5)), record.Key)
	assert.Equal(t, wire.MessageDigest(testutil.NewMessage(42, 5)), record.Digest)

	out, err = env.run(t, "record", "42", "6", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ErrCodeNotFound, decodeError(t, out).Code)

	out, err = env.run(t, "record", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "2 record(s) on chain 42")

	out, err = env.run(t, "record", "42", "--format", "json")
	require.NoError(t, err)
	var records []admission.AdmissionRecord
	decodeData(t, out, &records)
	require.Len(t, records, 2)
	assert.Equal(t, wire.Seq(5), records[0].SequenceID)
	assert.Equal(t, wire.Seq(100), records[1].SequenceID)

	_, err = env.run(t, "record", "42", "1e3")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDigestCommand(t *testing.T) {
	msg := testutil.NewMessage(42, 5)

	out, err := execute(t, append([]string{"digest", "--dest", "1", "--format", "json"}, admitArgs("42", "5")[1:]...)...)
	require.NoError(t, err)
	var result DigestResult
	decodeData(t, out, &result)
	assert.Equal(t, wire.MessageDigest(msg), result.Digest)
	assert.Equal(t, wire.CounterKey(42), result.CounterKey)
	assert.Equal(t, wire.RecordKey(42, wire.Seq(5)), result.RecordKey)
	assert.Empty(t, result.Encoding)

	out, err = execute(t, append([]string{"digest", "--dest", "1", "-v"}, admitArgs("42", "5")[1:]...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "digest:      "+wire.MessageDigest(msg).String())
	assert.Contains(t, out, "encoding:    "+hex.EncodeToString(wire.EncodeMessage(msg)))
}

func TestDigestCommand_DestinationFromGateway(t *testing.T) {
	msg := testutil.NewMessage(42, 5)
	args := append([]string{"digest", "--format", "json"}, admitArgs("42", "5")[1:]...)

	out, err := execute(t, append(args, "--config", writeGateway(t, openGateway))...)
	require.NoError(t, err)
	var result DigestResult
	decodeData(t, out, &result)
	assert.Equal(t, wire.MessageDigest(msg), result.Digest, "same digest admit verifies")

	missing := filepath.Join(t.TempDir(), "none.cue")
	out, err = execute(t, append(args, "--config", missing)...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	cliErr := decodeError(t, out)
	assert.Equal(t, ErrCodeInvalidArg, cliErr.Code)
	assert.Contains(t, cliErr.Message, "--dest is required")

	anyDest := writeGateway(t, `gateway: {
	authority: "relay-admin"
	signatures: enabled: false
}`)
	out, err = execute(t, append(args, "--config", anyDest)...)
	require.Error(t, err)
	assert.Contains(t, decodeError(t, out).Message, "accepts any destination")
}

func TestCheckConfigCommand(t *testing.T) {
	signer := testutil.NewSigner(1)
	path := writeGateway(t, `gateway: {
	authority:     "relay-admin"
	dest_chain_id: 1
	environment:   "production"
	signatures: signers: ["`+signer.PublicHex()+`"]
}`)

	out, err := execute(t, "check-config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
	assert.Contains(t, out, "signatures:  1 of 1")
	assert.Contains(t, out, "environment: production")

	out, err = execute(t, "check-config", "--config", path, "--format", "json")
	require.NoError(t, err)
	var result CheckConfigResult
	decodeData(t, out, &result)
	assert.True(t, result.Valid)
	assert.Equal(t, "relay-admin", result.Gateway.Authority)
}

func TestCheckConfigCommand_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
		args []string
		want string
	}{
		{"missing authority", `gateway: dest_chain_id: 1`, nil, "authority"},
		{"threshold above signers", `gateway: authority: "a"`, nil, "exceeds 0 distinct signers"},
		{"production override", openGateway, []string{"--env", "production"}, "cannot be disabled in production"},
		{"unknown environment", openGateway, []string{"--env", "staging"}, `unknown environment "staging"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"check-config", writeGateway(t, tt.src)}, tt.args...)
			out, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error [E_CONFIG]")
			assert.Contains(t, out, tt.want)
		})
	}

	out, err := execute(t, "check-config", filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	assert.Contains(t, out, "read config")
}

func TestEventsCommand(t *testing.T) {
	env := newGatewayEnv(t, openGateway)

	out, err := env.run(t, "events")
	require.NoError(t, err)
	assert.Equal(t, "No events\n", out)

	_, err = env.run(t, "init-counter", "42", "--requester", "relay-admin")
	require.NoError(t, err)
	_, err = env.run(t, admitArgs("42", "5")...)
	require.NoError(t, err)
	_, err = env.run(t, admitArgs("42", "5")...)
	require.Error(t, err)

	out, err = env.run(t, "events", "--format", "json")
	require.NoError(t, err)
	var events []EventView
	decodeData(t, out, &events)
	require.Len(t, events, 2, "rejections emit nothing")
	assert.Equal(t, admission.KindCounterInitialized, events[0].Kind)
	assert.Equal(t, admission.KindMessageAdmitted, events[1].Kind)
	assert.Equal(t, wire.ChainID(42), events[1].SourceChainID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[1].Payload, &payload))
	assert.Equal(t, "5", payload["message_sequence_id"])

	out, err = env.run(t, "events", "--after", events[0].ID, "--format", "json")
	require.NoError(t, err)
	var page []EventView
	decodeData(t, out, &page)
	require.Len(t, page, 1)
	assert.Equal(t, events[1].ID, page[0].ID)

	_, err = env.run(t, "events", "--after", "x")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAuditCommand(t *testing.T) {
	env := newGatewayEnv(t, openGateway)

	out, err := env.run(t, "audit")
	require.NoError(t, err)
	assert.Equal(t, "No counters initialized\n", out)

	_, err = env.run(t, "init-counter", "42", "--requester", "relay-admin")
	require.NoError(t, err)
	for _, seq := range []string{"5", "100"} {
		_, err := env.run(t, admitArgs("42", seq)...)
		require.NoError(t, err)
	}

	out, err = env.run(t, "audit")
	require.NoError(t, err)
	assert.Equal(t, "✓ chain 42: watermark 100, 2 record(s)\n", out)

	out, err = env.run(t, "audit", "42", "--format", "json")
	require.NoError(t, err)
	var result AuditResult
	decodeData(t, out, &result)
	assert.True(t, result.Consistent)
	require.Len(t, result.Chains, 1)
	assert.Equal(t, 2, result.Chains[0].RecordCount)

	out, err = env.run(t, "audit", "8")
	require.Error(t, err)
	assert.Contains(t, out, "Error [COUNTER_NOT_FOUND]")
}

func TestBackendErrors(t *testing.T) {
	out, err := execute(t, "watermark", "--db", "", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeInvalidArg, decodeError(t, out).Code)

	out, err = execute(t, "watermark", "--db", filepath.Join(t.TempDir(), "no", "such", "dir", "x.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E_BACKEND]")
}

func TestVerboseEchoesEvents(t *testing.T) {
	env := newGatewayEnv(t, openGateway)

	run := func(args ...string) (string, string) {
		t.Helper()
		out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
		cmd := newRootCommand(&RootOptions{Logger: zap.NewNop()})
		cmd.SetOut(out)
		cmd.SetErr(errOut)
		cmd.SetArgs(append(args, "--db", env.db, "--config", env.config, "-v", "--format", "json"))
		require.NoError(t, cmd.Execute())
		return out.String(), errOut.String()
	}

	out, stderr := run("init-counter", "42", "--requester", "relay-admin")
	assert.Contains(t, stderr, "Event CounterInitialized {")
	assert.NotContains(t, out, "Event ", "events never reach the JSON stream")

	_, stderr = run(admitArgs("42", "5")...)
	assert.Contains(t, stderr, "Event MessageAdmitted {")
	assert.Contains(t, stderr, `"source_chain_id"`)
}
