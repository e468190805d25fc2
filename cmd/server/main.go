package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/roulette/chat-app/internal/abuse"
	"github.com/roulette/chat-app/internal/messaging"
	"github.com/roulette/chat-app/internal/moderation"
	"github.com/roulette/chat-app/internal/pairing"
	"github.com/roulette/chat-app/internal/protocol"
	"github.com/roulette/chat-app/internal/ratelimit"
	"github.com/roulette/chat-app/internal/relay"
	"github.com/roulette/chat-app/internal/report"
	"github.com/roulette/chat-app/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	reportThreshold := abuse.DefaultThreshold
	if v := os.Getenv("REPORT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			reportThreshold = n
		}
	}

	moderationTimeout := moderation.DefaultTimeout
	if v := os.Getenv("MODERATION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			moderationTimeout = d
		}
	}

	// --- NATS (optional): remote moderation classifier ---
	// Without NATS the gate falls back to the in-process filter; moderation
	// never becomes a hard dependency of chat availability.
	var classifier moderation.Classifier
	var natsClient *messaging.Client
	natsConfig := messaging.DefaultConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		natsConfig.URL = url
	}
	natsClient, err := messaging.Connect(natsConfig)
	if err != nil {
		log.Printf("nats unavailable, using in-process moderation filter: %v", err)
		natsClient = nil
		classifier = moderation.NewFilter()
	} else {
		classifier = moderation.NewRemoteClassifier(natsClient)
	}

	gate := moderation.NewGate(classifier, moderationTimeout)

	// --- Redis (optional): message and skip rate limiting ---
	var msgLimiter, skipLimiter *ratelimit.RuleLimiter
	var redisClient *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("redis unavailable, rate limiting disabled: %v", err)
			redisClient.Close()
			redisClient = nil
		} else {
			limiter := ratelimit.NewLimiter(redisClient)
			msgLimiter = limiter.ForRule(ratelimit.RuleMessage)
			skipLimiter = limiter.ForRule(ratelimit.RuleSkip)
		}
		cancel()
	}

	// --- PostgreSQL (optional): abuse report audit trail ---
	var db *sql.DB
	var reportStore *report.Store
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = db.PingContext(pingCtx)
			cancel()
		}
		if err == nil {
			err = report.Migrate(db)
		}
		if err != nil {
			log.Printf("postgres unavailable, report persistence disabled: %v", err)
			if db != nil {
				db.Close()
				db = nil
			}
		} else {
			reportStore = report.NewStore(db)
		}
	}

	log.Printf("Roulette chat server starting")
	log.Printf("  listen_addr:      %s", config.ListenAddr)
	log.Printf("  worker_pool:      %d", config.WorkerPoolSize)
	log.Printf("  max_connections:  %d", config.MaxConnections)
	log.Printf("  read_timeout:     %s", config.ReadTimeout)
	log.Printf("  write_timeout:    %s", config.WriteTimeout)
	log.Printf("  report_threshold: %d", reportThreshold)
	log.Printf("  moderation:       remote=%v timeout=%s", natsClient != nil, moderationTimeout)
	log.Printf("  rate_limiting:    %v", msgLimiter != nil)
	log.Printf("  report_store:     %v", reportStore != nil)

	// Declare server early so closures can capture it.
	var server *ws.Server

	notifier := &pairingNotifier{}
	engine := pairing.NewEngine(notifier)

	var recorder abuse.Recorder
	if reportStore != nil {
		recorder = &dbRecorder{store: reportStore, engine: engine}
	}

	tracker := abuse.NewTracker(reportThreshold, engine, recorder, func(id string) {
		if data, err := protocol.NewServerMessage(protocol.TypeBanned, protocol.BannedMsg{}); err == nil {
			_ = server.Send(id, data)
		}
		// Forced close runs the normal disconnect path, so the partner is
		// notified and re-pooled, and the report count is cleared.
		server.CloseConnection(id)
	})

	dispatcher := ws.NewMessageDispatcher(nil)

	// -----------------------------------------------------------------------
	// join — declare gender/preference and enter the waiting pool
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeJoin, func(conn *ws.Connection, msg interface{}) {
		joinMsg, ok := msg.(protocol.JoinMsg)
		if !ok {
			return
		}
		if joinMsg.Gender == "" {
			log.Printf("join from conn=%s with empty gender, ignoring", conn.ID)
			return
		}
		pref := joinMsg.Pref
		if pref == "" {
			pref = pairing.PrefAny
		}

		if err := engine.Join(conn.ID, joinMsg.Gender, pref); err != nil {
			// Already waiting or already paired: stale client, no-op.
			log.Printf("join from conn=%s rejected: %v", conn.ID, err)
			return
		}
		log.Printf("join from conn=%s gender=%s pref=%s", conn.ID, joinMsg.Gender, pref)
	})

	// -----------------------------------------------------------------------
	// text-message — moderated relay to the current partner
	// -----------------------------------------------------------------------
	var router *relay.Router

	dispatcher.Register(protocol.TypeTextMessage, func(conn *ws.Connection, msg interface{}) {
		textMsg, ok := msg.(protocol.TextMsg)
		if !ok {
			return
		}
		router.RelayText(context.Background(), conn.ID, textMsg.Message)
	})

	// -----------------------------------------------------------------------
	// call-offer / call-answer / ice-candidate — opaque signaling relay
	// -----------------------------------------------------------------------
	for _, msgType := range []string{protocol.TypeCallOffer, protocol.TypeCallAnswer, protocol.TypeICE} {
		msgType := msgType
		dispatcher.Register(msgType, func(conn *ws.Connection, msg interface{}) {
			signalMsg, ok := msg.(protocol.SignalMsg)
			if !ok {
				return
			}
			router.RelaySignal(conn.ID, msgType, signalMsg)
		})
	}

	// -----------------------------------------------------------------------
	// skip-partner — end the pairing and look for someone new
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeSkipPartner, func(conn *ws.Connection, msg interface{}) {
		if skipLimiter != nil {
			allowed, retryAfter, err := skipLimiter.Allow(context.Background(), conn.ID)
			if err == nil && !allowed {
				if data, err := protocol.NewServerMessage(protocol.TypeRateLimited, protocol.RateLimitedMsg{
					RetryAfter: int(retryAfter.Seconds()),
				}); err == nil {
					_ = server.Send(conn.ID, data)
				}
				return
			}
		}

		if err := engine.Skip(conn.ID); err != nil {
			log.Printf("skip from conn=%s rejected: %v", conn.ID, err)
			return
		}
		log.Printf("skip from conn=%s", conn.ID)
	})

	// -----------------------------------------------------------------------
	// report-user — count a report, ban at the threshold
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeReportUser, func(conn *ws.Connection, msg interface{}) {
		reportMsg, ok := msg.(protocol.ReportUserMsg)
		if !ok {
			return
		}
		tracker.Report(context.Background(), conn.ID, reportMsg.TargetID)
	})

	server = ws.NewServer(config, dispatcher.Dispatch)
	dispatcher.SetServer(server)
	notifier.server = server

	router = relay.NewRouter(engine, gate, limiterOrNil(msgLimiter), server)

	server.SetOnConnect(func(connID string) {
		engine.Register(connID)
	})

	server.SetOnDisconnect(func(connID string) {
		engine.Disconnect(connID)
		tracker.Forget(connID)
	})

	server.SetStats(func() ws.Stats {
		waiting, sessions := engine.Stats()
		return ws.Stats{Waiting: waiting, Sessions: sessions}
	})

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if natsClient != nil {
			natsClient.Close()
		}
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if db != nil {
			_ = db.Close()
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// limiterOrNil avoids handing the router a typed nil wrapped in a non-nil
// interface value.
func limiterOrNil(l *ratelimit.RuleLimiter) relay.Limiter {
	if l == nil {
		return nil
	}
	return l
}

// pairingNotifier translates engine lifecycle events into outbound protocol
// messages. The server field is assigned after construction, before the
// first connection can trigger an event.
type pairingNotifier struct {
	server *ws.Server
}

func (n *pairingNotifier) send(id, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("notify: build %s for conn=%s: %v", msgType, id, err)
		return
	}
	if err := n.server.Send(id, data); err != nil {
		log.Printf("notify: send %s to conn=%s: %v", msgType, id, err)
	}
}

func (n *pairingNotifier) Matched(id, partnerID, roomID string) {
	n.send(id, protocol.TypeMatched, protocol.MatchedMsg{PartnerID: partnerID, RoomID: roomID})
}

func (n *pairingNotifier) Waiting(id string) {
	n.send(id, protocol.TypeWaiting, protocol.WaitingMsg{})
}

func (n *pairingNotifier) PartnerSkipped(id string) {
	n.send(id, protocol.TypePartnerSkipped, protocol.PartnerSkippedMsg{})
}

func (n *pairingNotifier) PartnerDisconnected(id string) {
	n.send(id, protocol.TypePartnerDisconnected, protocol.PartnerDisconnectedMsg{})
}

// dbRecorder persists reports through the PostgreSQL store, tagging each row
// with the reported user's current room when one exists.
type dbRecorder struct {
	store  *report.Store
	engine *pairing.Engine
}

func (r *dbRecorder) Record(ctx context.Context, reporterID, targetID string) error {
	_, roomID, _ := r.engine.Partner(targetID)
	return r.store.Create(ctx, &report.Report{
		ReporterID: reporterID,
		ReportedID: targetID,
		RoomID:     roomID,
	})
}
