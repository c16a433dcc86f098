package remote

import (
	"errors"
	"fmt"
	"testing"

	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRPCError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: x", constants.ErrAccessDenied), CodeAccessDenied},
		{fmt.Errorf("%w: %w", constants.ErrInvalidCommand, constants.ErrInvalidAddress), CodeInvalidCommand},
		{fmt.Errorf("%w: y", constants.ErrOutsideModel), CodeOutsideModel},
		{constants.ErrContention, CodeContention},
		{errors.New("disk on fire"), CodeInternalError},
		{&RPCError{Code: CodeInvalidParams, Message: "bad"}, CodeInvalidParams},
	}
	for _, tc := range cases {
		rpcErr := newRPCError(tc.err)
		assert.Equal(t, tc.code, rpcErr.Code, tc.err.Error())
	}
}

func TestRPCErrorSurvivesTheWire(t *testing.T) {
	codec := models.CborCodec{}
	res := RPCResponse{ID: "1", Error: newRPCError(fmt.Errorf("%w: z", constants.ErrRevisionGap))}
	data, err := codec.Marshal(res)
	require.NoError(t, err)

	var decoded RPCResponse
	require.NoError(t, codec.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Error)
	assert.ErrorIs(t, decoded.Error, constants.ErrRevisionGap)
	assert.NotErrorIs(t, decoded.Error, constants.ErrAccessDenied)
	assert.Nil(t, (&RPCError{Code: CodeInternalError}).Unwrap())
}

func TestToolkitRoutesResponses(t *testing.T) {
	tk, err := NewToolkit(NewConfig("ws://localhost:1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:1/rpc", tk.Endpoint())
	assert.Equal(t, "alice", tk.Header().Get(constants.ActorHeader))

	req, _, err := tk.NewRequest(Execute, ExecuteParams{Change: change.Box{Change: change.Must(change.NewAdd(models.ModelAddress("r", "m"), change.Safe))}})
	require.NoError(t, err)
	ch, err := tk.CreateResponseChannel(req.ID)
	require.NoError(t, err)
	_, err = tk.CreateResponseChannel(req.ID)
	assert.ErrorIs(t, err, constants.ErrIDInUse)

	result, err := encodeResult(tk.Config.Codec, int64(7))
	require.NoError(t, err)
	data, err := tk.Config.Codec.Marshal(RPCResponse{ID: req.ID, Result: result})
	require.NoError(t, err)
	tk.HandleResponse(data)

	res := <-ch
	rev, err := Decode[int64](tk.Config.Codec, &res)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rev)

	tk.RemoveResponseChannel(req.ID)
	_, ok := tk.GetResponseChannel(req.ID)
	assert.False(t, ok)

	_, err = NewToolkit(&Config{Actor: "alice"})
	assert.ErrorIs(t, err, constants.ErrNoBaseURL)
}

func TestConfigSchemes(t *testing.T) {
	cases := map[string]string{
		"ws://host:1":       "ws://host:1",
		"wss://host/":       "wss://host",
		"http://host:2":     "ws://host:2",
		"https://host:3/db": "wss://host:3/db",
	}
	for in, want := range cases {
		tk, err := NewToolkit(NewConfig(in, "alice"))
		require.NoError(t, err, in)
		assert.Equal(t, want+"/rpc", tk.Endpoint())
	}

	_, err := NewToolkit(NewConfig("ftp://host", "alice"))
	assert.ErrorIs(t, err, constants.ErrUnsupportedScheme)
}
