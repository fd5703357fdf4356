package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"forumwatch-go/internal/model"
)

const DefaultAPIURL = "https://api.telegram.org"

var ErrDeliveryFailed = errors.New("telegram delivery failed")

type Options struct {
	APIURL   string
	Token    string
	Chat     string
	ThreadID *int

	// Attempts is the total number of delivery attempts per message.
	Attempts   int
	RetryDelay time.Duration
	// SendDelay is the minimum spacing between two sends.
	SendDelay time.Duration

	Client *http.Client
}

// Sender delivers topic announcements to a single chat.
type Sender struct {
	bot        *tele.Bot
	to         tele.Recipient
	sendOpts   *tele.SendOptions
	attempts   int
	retryDelay time.Duration
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

func NewSender(opts Options, logger zerolog.Logger) (*Sender, error) {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}

	bot, err := tele.NewBot(tele.Settings{
		URL:     opts.APIURL,
		Token:   opts.Token,
		Client:  opts.Client,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}

	sendOpts := &tele.SendOptions{
		ParseMode:             tele.ModeMarkdownV2,
		DisableWebPagePreview: true,
	}
	if opts.ThreadID != nil {
		sendOpts.ThreadID = *opts.ThreadID
	}

	limit := rate.Inf
	if opts.SendDelay > 0 {
		limit = rate.Every(opts.SendDelay)
	}

	return &Sender{
		bot:        bot,
		to:         chatRecipient(opts.Chat),
		sendOpts:   sendOpts,
		attempts:   opts.Attempts,
		retryDelay: opts.RetryDelay,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.With().Str("chat", opts.Chat).Logger(),
	}, nil
}

// Send formats topic and delivers it, retrying up to the configured number
// of attempts. It returns nil only once Telegram acknowledged the message.
func (s *Sender) Send(ctx context.Context, site model.Site, topic model.Topic) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	text := FormatMessage(site, topic)
	pacing := &floodBackOff{base: backoff.NewConstantBackOff(s.retryDelay)}
	attempt := 0
	op := func() error {
		attempt++
		_, err := s.bot.Send(s.to, text, s.sendOpts)
		if err == nil {
			return nil
		}
		s.logger.Warn().Err(err).Int("attempt", attempt).Int("attempts", s.attempts).Str("link", topic.Link).Msg("telegram send failed")

		var flood tele.FloodError
		if errors.As(err, &flood) {
			pacing.wait = time.Duration(flood.RetryAfter) * time.Second
			return err
		}
		if code := errorCode(err); code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(pacing, uint64(s.attempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("%w after %d attempt(s): %w", ErrDeliveryFailed, attempt, err)
	}

	s.logger.Info().Str("link", topic.Link).Int("attempt", attempt).Msg("telegram alert sent")
	return nil
}

// floodBackOff stretches the next delay to the retry_after Telegram asked
// for on a 429.
type floodBackOff struct {
	base backoff.BackOff
	wait time.Duration
}

func (b *floodBackOff) NextBackOff() time.Duration {
	next := b.base.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.wait > next {
		next = b.wait
	}
	b.wait = 0
	return next
}

func (b *floodBackOff) Reset() {
	b.base.Reset()
	b.wait = 0
}

// telebot only types the errors it knows by description; everything else
// comes back as "telegram: <description> (<code>)".
var untypedErrorCode = regexp.MustCompile(`^telegram: .*\((\d{3})\)$`)

func errorCode(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	if m := untypedErrorCode.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}
