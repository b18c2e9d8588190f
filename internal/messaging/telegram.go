package messaging

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"jobwire/scraper-service/internal/model"
)

var _ Client = (*Telegram)(nil)

// Telegram implements Client over an MTProto user session (gotd/td).
//
// One Telegram is constructed per process and injected where needed; the
// underlying connection is established once by Connect and shared. Requests
// serialize through the single MTProto session.
type Telegram struct {
	client *telegram.Client
	phone  string

	mu         sync.Mutex
	authorized bool
	codeHash   string // pending phone_code_hash, empty when no code was sent

	stopRun context.CancelFunc
	runDone chan struct{}
}

// NewTelegram builds the client. The session file lives under sessionDir and
// survives restarts, so a once-verified account reconnects without a new code.
func NewTelegram(apiID int, apiHash, phone, sessionDir string) (*Telegram, error) {
	if apiID == 0 || apiHash == "" {
		return nil, fmt.Errorf("telegram api credentials are required")
	}
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	client := telegram.NewClient(apiID, apiHash, telegram.Options{
		SessionStorage: &session.FileStorage{
			Path: filepath.Join(sessionDir, "scraper.session"),
		},
	})

	return &Telegram{client: client, phone: phone}, nil
}

// Connect establishes the connection in a background run loop and checks
// authorization. When the stored session is not authorized it requests a
// login code for the configured phone and returns ErrAuthRequired; the
// operator then completes sign-in via VerifyCode.
func (t *Telegram) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	t.stopRun = cancel
	t.runDone = make(chan struct{})

	ready := make(chan error, 1)
	go func() {
		defer close(t.runDone)
		err := t.client.Run(runCtx, func(ctx context.Context) error {
			status, err := t.client.Auth().Status(ctx)
			if err != nil {
				ready <- fmt.Errorf("auth status: %w", err)
				return err
			}
			t.mu.Lock()
			t.authorized = status.Authorized
			t.mu.Unlock()
			ready <- nil
			<-ctx.Done()
			return ctx.Err()
		})
		if err != nil && runCtx.Err() == nil {
			log.Printf("[telegram] run loop ended: %v", err)
			// Unblock Connect when the loop dies before the callback ran.
			select {
			case ready <- fmt.Errorf("run: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			return err
		}
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}

	if !t.Authorized() {
		if err := t.requestCode(ctx); err != nil {
			return fmt.Errorf("send login code: %w", err)
		}
		return ErrAuthRequired
	}
	return nil
}

// Close stops the background run loop.
func (t *Telegram) Close() {
	if t.stopRun != nil {
		t.stopRun()
		select {
		case <-t.runDone:
		case <-time.After(5 * time.Second):
		}
	}
}

// Authorized reports whether the session holds a signed-in account.
func (t *Telegram) Authorized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.authorized
}

// NeedsVerification reports whether a login code was sent and is awaited.
func (t *Telegram) NeedsVerification() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.codeHash != ""
}

func (t *Telegram) requestCode(ctx context.Context) error {
	sent, err := t.client.Auth().SendCode(ctx, t.phone, auth.SendCodeOptions{})
	if err != nil {
		return err
	}
	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return fmt.Errorf("unexpected sent-code response %T", sent)
	}
	t.mu.Lock()
	t.codeHash = code.PhoneCodeHash
	t.mu.Unlock()
	log.Printf("[telegram] verification code sent to %s", t.phone)
	return nil
}

// VerifyCode completes the two-factor sign-in with the code the operator
// received on their Telegram account.
func (t *Telegram) VerifyCode(ctx context.Context, code string) error {
	t.mu.Lock()
	hash := t.codeHash
	t.mu.Unlock()
	if hash == "" {
		return fmt.Errorf("no pending verification")
	}

	if _, err := t.client.Auth().SignIn(ctx, t.phone, code, hash); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	t.mu.Lock()
	t.authorized = true
	t.codeHash = ""
	t.mu.Unlock()
	log.Println("[telegram] sign-in complete")
	return nil
}

// Resolve implements Client.
func (t *Telegram) Resolve(ctx context.Context, name string) (Channel, error) {
	if !t.Authorized() {
		return Channel{}, ErrAuthRequired
	}

	username := strings.TrimPrefix(name, "@")
	peer, err := t.client.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		return Channel{}, fmt.Errorf("resolve %q: %w", name, err)
	}

	for _, chat := range peer.Chats {
		if ch, ok := chat.(*tg.Channel); ok {
			return Channel{ID: ch.ID, AccessHash: ch.AccessHash, Name: username}, nil
		}
	}
	return Channel{}, fmt.Errorf("resolve %q: no channel in response", name)
}

// History implements Client.
func (t *Telegram) History(ctx context.Context, ch Channel, limit int) ([]model.Message, error) {
	if !t.Authorized() {
		return nil, ErrAuthRequired
	}

	res, err := t.client.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash},
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("history %q: %w", ch.Name, err)
	}

	msgs, ok := res.(*tg.MessagesChannelMessages)
	if !ok {
		return nil, fmt.Errorf("history %q: unexpected response %T", ch.Name, res)
	}

	out := make([]model.Message, 0, len(msgs.Messages))
	for _, raw := range msgs.Messages {
		m, ok := raw.(*tg.Message)
		if !ok || m.Message == "" {
			continue
		}
		views, _ := m.GetViews()
		forwards, _ := m.GetForwards()
		out = append(out, model.Message{
			ID:       int64(m.ID),
			Text:     m.Message,
			Date:     time.Unix(int64(m.Date), 0).UTC(),
			Views:    views,
			Forwards: forwards,
		})
	}
	return out, nil
}
