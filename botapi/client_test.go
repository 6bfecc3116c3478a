package botapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123:SECRET"

// test server which answers every request with the given status and body, counting hits
func testServer(t *testing.T, status int, body string, check func(r *http.Request, reqBody []byte)) (*httptest.Server, *int32) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		b, _ := io.ReadAll(r.Body)
		if check != nil {
			check(r, b)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testClient(srv *httptest.Server) *Client {
	return &Client{
		Client: srv.Client(),
		Host:   srv.URL,
		Token:  testToken,
	}
}

func TestSendMessage(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv, hits := testServer(t, 200, `{"ok":true,"result":{"message_id":55,"chat":{"id":42,"type":"private"},"date":1700000000,"text":"hi"}}`,
		func(r *http.Request, reqBody []byte) {
			assert.Equal("/bot"+testToken+"/sendMessage", r.URL.Path)
			assert.Equal(http.MethodPost, r.Method)
			assert.Equal("application/json", r.Header.Get("Content-Type"))
			var params SendMessageParams
			assert.NoError(json.Unmarshal(reqBody, &params))
			assert.Equal(int64(42), params.ChatID)
			assert.Equal("hi", params.Text)
			if assert.NotNil(params.ReplyParameters) {
				assert.Equal(int64(7), params.ReplyParameters.MessageID)
				assert.True(params.ReplyParameters.AllowSendingWithoutReply)
			}
		})

	c := testClient(srv)
	msg, err := c.SendMessage(ctx, SendMessageParams{
		ChatID: 42,
		Text:   "hi",
		ReplyParameters: &ReplyParameters{
			MessageID:                7,
			AllowSendingWithoutReply: true,
		},
	})
	require.NoError(t, err)
	assert.Equal(int64(55), msg.MessageID)
	assert.True(msg.Chat.IsPrivate())
	assert.Equal(int32(1), atomic.LoadInt32(hits))
}

func TestGetUpdatesDecoding(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	body := `{"ok":true,"result":[
		{"update_id":10,"message":{"message_id":1,"from":{"id":1001,"is_bot":false,"first_name":"A","username":"alice"},"chat":{"id":1001,"type":"private"},"date":1,"sticker":{"file_id":"x","file_unique_id":"y","emoji":"👍"}}},
		{"update_id":11,"message":{"message_id":2,"from":{"id":777,"is_bot":false,"first_name":"Op"},"chat":{"id":777,"type":"private"},"date":2,"text":"/approve",
			"reply_to_message":{"message_id":9,"from":{"id":4242,"is_bot":true,"first_name":"bot"},"chat":{"id":777,"type":"private"},"date":1,"text":"hello",
				"forward_origin":{"type":"user","date":1,"sender_user":{"id":1001,"is_bot":false,"first_name":"A"}}}}}
	]}`
	srv, _ := testServer(t, 200, body, func(r *http.Request, reqBody []byte) {
		var params GetUpdatesParams
		assert.NoError(json.Unmarshal(reqBody, &params))
		assert.Equal(int64(10), params.Offset)
		assert.Equal(5, params.Timeout)
	})

	updates, err := testClient(srv).GetUpdates(ctx, GetUpdatesParams{Offset: 10, Timeout: 5})
	require.NoError(t, err)
	require.Equal(t, 2, len(updates))

	assert.Equal(int64(10), updates[0].UpdateID)
	assert.NotNil(updates[0].Message.Sticker)
	assert.Equal("alice", updates[0].Message.From.Username)

	reply := updates[1].Message.ReplyToMessage
	require.NotNil(t, reply)
	fwd := reply.ForwardedFrom()
	require.NotNil(t, fwd)
	assert.Equal(int64(1001), fwd.ID)
}

func TestAPIError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv, _ := testServer(t, 400, `{"ok":false,"error_code":400,"description":"Bad Request: message to delete not found"}`, nil)
	err := testClient(srv).DeleteMessage(ctx, 1, 2)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(400, apiErr.StatusCode)
	assert.Contains(apiErr.Description, "not found")
	assert.False(apiErr.IsThrottled())
}

func TestThrottledError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv, _ := testServer(t, 429, `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3","parameters":{"retry_after":3}}`, nil)
	_, err := testClient(srv).GetMe(ctx)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.True(apiErr.IsThrottled())
	assert.Equal(3*time.Second, apiErr.RetryAfter)
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv, hits := testServer(t, 502, `{"ok":false,"error_code":502,"description":"Bad Gateway"}`, nil)
	c := testClient(srv)
	c.Breaker = NewBreaker("test", time.Minute, 2)

	for i := 0; i < 2; i++ {
		_, err := c.GetMe(ctx)
		assert.Error(err)
	}
	_, err := c.GetMe(ctx)
	assert.ErrorIs(err, gobreaker.ErrOpenState)
	assert.Equal(int32(2), atomic.LoadInt32(hits))
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv, hits := testServer(t, 400, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, nil)
	c := testClient(srv)
	c.Breaker = NewBreaker("test", time.Minute, 2)

	for i := 0; i < 5; i++ {
		_, err := c.GetChatByUsername(ctx, "nobody")
		var apiErr *Error
		assert.True(errors.As(err, &apiErr))
	}
	assert.Equal(int32(5), atomic.LoadInt32(hits))
	assert.Equal(gobreaker.StateClosed, c.Breaker.State())
}

func TestTransportErrorRedactsToken(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	c := &Client{Client: http.DefaultClient, Host: host, Token: testToken}
	_, err := c.GetMe(ctx)
	require.Error(t, err)
	assert.False(strings.Contains(err.Error(), "SECRET"), err.Error())
	assert.Contains(err.Error(), "REDACTED")
}

func TestGetChatByUsernamePrefix(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv, _ := testServer(t, 200, `{"ok":true,"result":{"id":1001,"type":"private","username":"alice"}}`, func(r *http.Request, reqBody []byte) {
		var params getChatParams
		assert.NoError(json.Unmarshal(reqBody, &params))
		assert.Equal("@alice", params.ChatID)
	})
	chat, err := testClient(srv).GetChatByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(int64(1001), chat.ID)
}
