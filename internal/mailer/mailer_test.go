package mailer

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront-newsletter/internal/config"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/mhale/smtpd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	from string
	to   []string
	data []byte
}

// smtpListenAndServe starts a fake relay on a random port and records every
// message it accepts.
func smtpListenAndServe(t *testing.T) (string, int, func() []received) {
	t.Helper()
	var (
		mu   sync.Mutex
		msgs []received
	)
	srv := &smtpd.Server{
		Hostname: "example.com",
		Handler: func(_ net.Addr, from string, to []string, data []byte) {
			mu.Lock()
			defer mu.Unlock()
			msgs = append(msgs, received{from: from, to: to, data: data})
		},
	}
	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() { _ = srv.Serve(ln) }()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port, func() []received {
		mu.Lock()
		defer mu.Unlock()
		return append([]received(nil), msgs...)
	}
}

func testMessage() Message {
	return Message{
		From:     "news@shop.example",
		FromName: "Maison Test",
		ReplyTo:  "help@shop.example",
		To:       "alice@example.com",
		Subject:  "Spring Sale",
		HTML:     "<p>Hello</p>",
		Headers: map[string]string{
			"List-Unsubscribe": "<https://shop.example/newsletter/unsubscribe?email=alice%40example.com>",
		},
	}
}

func TestSMTPSend(t *testing.T) {
	host, port, got := smtpListenAndServe(t)
	tr, err := NewSMTP(config.SMTPConfig{Host: host, Port: port, TLS: "none"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "smtp", tr.Name())

	require.NoError(t, tr.Send(context.Background(), testMessage()))

	msgs := got()
	require.Len(t, msgs, 1)
	assert.Equal(t, "news@shop.example", msgs[0].from)
	assert.Equal(t, []string{"alice@example.com"}, msgs[0].to)
	body := string(msgs[0].data)
	assert.Contains(t, body, "Subject: Spring Sale")
	assert.Contains(t, body, "List-Unsubscribe: <https://shop.example/newsletter/unsubscribe")
	assert.Contains(t, body, "text/html")
}

func TestSMTPUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	tr, err := NewSMTP(config.SMTPConfig{Host: "localhost", Port: addr.Port, TLS: "none"}, time.Second)
	require.NoError(t, err)
	assert.Error(t, tr.Send(context.Background(), testMessage()))
}

func TestNewSMTPValidation(t *testing.T) {
	_, err := NewSMTP(config.SMTPConfig{}, time.Second)
	assert.Error(t, err)
	_, err = NewSMTP(config.SMTPConfig{Host: "h", Port: 25, TLS: "sometimes"}, time.Second)
	assert.Error(t, err)
}

func TestMessageRejectsBadRecipient(t *testing.T) {
	m := testMessage()
	m.To = "not an address"
	_, err := m.build()
	assert.Error(t, err)
}

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	id := "msg-1"
	return &sesv2.SendEmailOutput{MessageId: &id}, nil
}

func TestSESSendRaw(t *testing.T) {
	fake := &fakeSES{}
	tr := &SES{client: fake, configSet: "newsletter"}
	require.NoError(t, tr.Send(context.Background(), testMessage()))

	require.NotNil(t, fake.in)
	assert.Equal(t, []string{"alice@example.com"}, fake.in.Destination.ToAddresses)
	assert.Equal(t, "newsletter", *fake.in.ConfigurationSetName)
	require.NotNil(t, fake.in.Content.Raw)
	raw := string(fake.in.Content.Raw.Data)
	assert.True(t, strings.Contains(raw, "List-Unsubscribe:"))
	assert.True(t, strings.Contains(raw, "<p>Hello</p>"))
}

func TestSESSendError(t *testing.T) {
	boom := errors.New("throttled")
	tr := &SES{client: &fakeSES{err: boom}}
	assert.ErrorIs(t, tr.Send(context.Background(), testMessage()), boom)
}

func TestNewSelectsTransport(t *testing.T) {
	ctx := context.Background()
	tr, err := New(ctx, config.MailConfig{Transport: "log"})
	require.NoError(t, err)
	assert.Equal(t, "log", tr.Name())
	assert.NoError(t, tr.Send(ctx, testMessage()))

	tr, err = New(ctx, config.MailConfig{Transport: "smtp", SMTP: config.SMTPConfig{Host: "localhost", Port: 2525, TLS: "none"}})
	require.NoError(t, err)
	assert.Equal(t, "smtp", tr.Name())

	_, err = New(ctx, config.MailConfig{Transport: "pigeon"})
	assert.Error(t, err)
}
