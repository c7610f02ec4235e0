package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

const (
	longPollSeconds = 30
	sendTimeout     = 15 * time.Second
)

// TelegramOpener opens Bot API connections. BaseURL is overridable so tests
// can point at a local server.
type TelegramOpener struct {
	BaseURL string
	Client  *http.Client
}

func NewTelegramOpener(baseURL string) *TelegramOpener {
	return &TelegramOpener{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: (longPollSeconds + 10) * time.Second},
	}
}

// Open validates the token with getMe and returns an unstarted transport.
func (o *TelegramOpener) Open(ctx context.Context, credential string) (Transport, error) {
	bot := &telegramBot{
		token:   credential,
		baseURL: o.BaseURL,
		client:  o.Client,
		done:    make(chan struct{}),
	}

	var me struct {
		Username string `json:"username"`
	}
	if err := bot.call(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}
	bot.username = me.Username
	return bot, nil
}

type telegramBot struct {
	token    string
	baseURL  string
	username string
	client   *http.Client

	handler  Handler
	offset   int64
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

type apiUpdate struct {
	UpdateID int64       `json:"update_id"`
	Message  *apiMessage `json:"message"`
}

type apiMessage struct {
	MessageID int64 `json:"message_id"`
	From      *struct {
		ID        int64  `json:"id"`
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
	} `json:"from"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text  string `json:"text"`
	Photo []struct {
		FileID string `json:"file_id"`
	} `json:"photo"`
	ReplyToMessage *struct {
		MessageID int64 `json:"message_id"`
	} `json:"reply_to_message"`
}

func (b *telegramBot) Username() string { return b.username }

func (b *telegramBot) Subscribe(h Handler) { b.handler = h }

func (b *telegramBot) Send(ctx context.Context, chatID int64, text string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	payload := map[string]any{"chat_id": chatID, "text": text}
	var sent struct {
		MessageID int64 `json:"message_id"`
	}
	if err := b.call(ctx, "sendMessage", payload, &sent); err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (b *telegramBot) Start(ctx context.Context) error {
	if b.handler == nil {
		return fmt.Errorf("transport: Start before Subscribe for @%s", b.username)
	}
	b.wg.Add(1)
	go b.pollLoop()
	return nil
}

// Stop closes the poll loop and waits for it, and for any in-flight handler
// call, to drain. Safe to call more than once.
func (b *telegramBot) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.done) })

	drained := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *telegramBot) pollLoop() {
	defer b.wg.Done()

	// The poll context is cancelled by Stop so a parked long poll returns
	// immediately instead of running out its server-side timeout.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-b.done
		cancel()
	}()

	for {
		select {
		case <-b.done:
			return
		default:
		}

		updates, err := b.getUpdates(ctx)
		if err != nil {
			select {
			case <-b.done:
				return
			case <-time.After(3 * time.Second):
				continue
			}
		}

		for _, up := range updates {
			if up.UpdateID >= b.offset {
				b.offset = up.UpdateID + 1
			}
			if up.Message == nil || up.Message.From == nil {
				continue
			}
			b.handler(ctx, eventFromMessage(up.Message))
		}
	}
}

func eventFromMessage(m *apiMessage) Event {
	ev := Event{
		ChatID:    m.Chat.ID,
		SenderID:  m.From.ID,
		Username:  m.From.Username,
		FirstName: m.From.FirstName,
		Text:      m.Text,
		MessageID: m.MessageID,
	}
	if len(m.Photo) > 0 {
		// Telegram lists photo sizes ascending; take the largest.
		ev.PhotoFileID = m.Photo[len(m.Photo)-1].FileID
	}
	if m.ReplyToMessage != nil {
		ev.ReplyToMessageID = m.ReplyToMessage.MessageID
	}
	return ev
}

func (b *telegramBot) getUpdates(ctx context.Context) ([]apiUpdate, error) {
	payload := map[string]any{
		"offset":          b.offset,
		"timeout":         longPollSeconds,
		"allowed_updates": []string{"message"},
	}
	var updates []apiUpdate
	if err := b.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// DownloadFile fetches a channel-hosted file (logo uploads).
func (b *telegramBot) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, int64, error) {
	var file struct {
		FilePath string `json:"file_path"`
		FileSize int64  `json:"file_size"`
	}
	if err := b.call(ctx, "getFile", map[string]any{"file_id": fileID}, &file); err != nil {
		return nil, 0, err
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", b.baseURL, b.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("%w: file download status %d", ErrUnreachable, resp.StatusCode)
	}
	return resp.Body, file.FileSize, nil
}

func (b *telegramBot) call(ctx context.Context, method string, payload any, out any) error {
	url := fmt.Sprintf("%s/bot%s/%s", b.baseURL, b.token, method)

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrUnreachable, method, err)
	}
	if !api.OK {
		return apiError(method, api)
	}
	if out != nil {
		if err := json.Unmarshal(api.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

func apiError(method string, api apiResponse) error {
	var kind error
	switch api.ErrorCode {
	case http.StatusUnauthorized, http.StatusNotFound:
		kind = ErrInvalidCredential
	case http.StatusForbidden:
		kind = ErrBlocked
	case http.StatusTooManyRequests:
		kind = ErrRateLimited
	default:
		kind = ErrUnreachable
	}
	log.Printf("telegram %s failed: %d %s", method, api.ErrorCode, api.Description)
	return fmt.Errorf("%w: %s (%d %s)", kind, method, api.ErrorCode, api.Description)
}
