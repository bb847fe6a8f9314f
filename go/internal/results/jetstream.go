package results

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Subjects below the configured prefix:
//
//	match.completed.<mode>  every finished match, ranked or not
//	ranked.created          a ranked pair was seated
//	rating.<user>           one message per rating change of a ranked match
const (
	subjectMatchCompleted = "match.completed"
	subjectRankedCreated  = "ranked.created"
	subjectRating         = "rating"
	subjectOther          = "event"
)

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	ReconnectWait   time.Duration
	MaxAge          time.Duration
	Replicas        int
	DuplicateWindow time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "LASTROUND_RESULTS",
		SubjectPrefix:   "lastround",
		ReconnectWait:   2 * time.Second,
		MaxAge:          30 * 24 * time.Hour,
		Replicas:        1,
		DuplicateWindow: 2 * time.Hour,
	}
}

// JetStreamPublisher fans outbox events out to match and rating subjects.
// Message ids derive from the outbox id, so a relay that publishes the same
// event twice is deduplicated by the stream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamPublisher(ctx context.Context, cfg JetStreamConfig) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("lastround-results"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, config: cfg}
	if _, err := js.CreateOrUpdateStream(ctx, p.streamConfig()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.StreamName, err)
	}
	return p, nil
}

func (p *JetStreamPublisher) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Match results and rating changes",
		Subjects:    []string{p.config.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    p.config.Replicas,
		Duplicates:  p.config.DuplicateWindow,
	}
}

// resultMessage is one message bound for the stream.
type resultMessage struct {
	id  string
	msg *nats.Msg
}

// matchMessage is the body of match and ranked subjects.
type matchMessage struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	MatchID   string          `json:"matchId"`
	At        time.Time       `json:"at"`
	Payload   json.RawMessage `json:"payload"`
}

// ratingMessage is the body of rating subjects.
type ratingMessage struct {
	MatchID string    `json:"matchId"`
	Mode    string    `json:"mode"`
	At      time.Time `json:"at"`
	RatingChange
}

func (p *JetStreamPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	msgs, err := p.messages(event, time.Now().UTC())
	if err != nil {
		return err
	}
	for _, m := range msgs {
		ack, err := p.js.PublishMsg(ctx, m.msg,
			jetstream.WithMsgID(m.id),
			jetstream.WithExpectStream(p.config.StreamName),
		)
		if err != nil {
			return fmt.Errorf("publish %s: %w", m.msg.Subject, err)
		}
		log.Debug().
			Str("subject", m.msg.Subject).
			Str("msg_id", m.id).
			Uint64("sequence", ack.Sequence).
			Msg("published result")
	}
	return nil
}

// messages maps one outbox event to the messages it produces.
func (p *JetStreamPublisher) messages(event OutboxEvent, at time.Time) ([]resultMessage, error) {
	body, err := json.Marshal(matchMessage{
		EventID:   event.ID.String(),
		EventType: event.EventType,
		MatchID:   event.AggregateID,
		At:        at,
		Payload:   json.RawMessage(event.Payload),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", event.EventType, err)
	}
	header := nats.Header{}
	header.Set("Event-Type", event.EventType)
	header.Set("Match-ID", event.AggregateID)

	switch event.EventType {
	case EventMatchCompleted:
		var done matchCompletedPayload
		if err := json.Unmarshal(event.Payload, &done); err != nil {
			return nil, fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		header.Set("Mode", done.Mode)
		out := []resultMessage{{
			id:  event.ID.String(),
			msg: &nats.Msg{Subject: p.subject(subjectMatchCompleted, token(done.Mode)), Header: header, Data: body},
		}}
		for _, c := range done.Changes {
			data, err := json.Marshal(ratingMessage{MatchID: done.MatchID, Mode: done.Mode, At: at, RatingChange: c})
			if err != nil {
				return nil, fmt.Errorf("marshal rating change: %w", err)
			}
			h := nats.Header{}
			h.Set("Match-ID", done.MatchID)
			h.Set("Mode", done.Mode)
			out = append(out, resultMessage{
				id:  event.ID.String() + ":" + c.UserID,
				msg: &nats.Msg{Subject: p.subject(subjectRating, token(c.UserID)), Header: h, Data: data},
			})
		}
		return out, nil

	case EventRankedMatchCreated:
		var created matchCreatedPayload
		if err := json.Unmarshal(event.Payload, &created); err != nil {
			return nil, fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		header.Set("Mode", created.Mode)
		return []resultMessage{{
			id:  event.ID.String(),
			msg: &nats.Msg{Subject: p.subject(subjectRankedCreated), Header: header, Data: body},
		}}, nil
	}

	return []resultMessage{{
		id:  event.ID.String(),
		msg: &nats.Msg{Subject: p.subject(subjectOther, token(event.EventType)), Header: header, Data: body},
	}}, nil
}

func (p *JetStreamPublisher) subject(parts ...string) string {
	return p.config.SubjectPrefix + "." + strings.Join(parts, ".")
}

var subjectEscaper = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// token makes a value safe to use as one subject token.
func token(s string) string {
	if s == "" {
		return "unknown"
	}
	return subjectEscaper.Replace(s)
}

func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
