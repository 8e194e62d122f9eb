// cmd/historian/main.go is an asynchronous worker that pops play records
// from the Redis queue and archives them to PostgreSQL in batches.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/sirfilior/jass/internal/cache"
	"github.com/sirfilior/jass/internal/database"
)

// HistorianService encapsulates the Redis and DB logic for archiving plays.
type HistorianService struct {
	redisClient *redis.Client
	queueName   string
	batchSize   int
	flushDelay  time.Duration

	batchMu  sync.Mutex
	batch    []cache.PlayRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewHistorianService constructs a service from environment variables or defaults.
func NewHistorianService() *HistorianService {
	batchSize := getEnvInt("HISTORIAN_BATCH_SIZE", 20)
	flushMs := getEnvInt("HISTORIAN_FLUSH_MS", 500)

	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &HistorianService{
		redisClient: rdb,
		queueName:   getEnv("HISTORIAN_QUEUE_NAME", cache.DefaultQueueName),
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		batch:       make([]cache.PlayRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run connects the database and drains the queue until interrupted.
func (hs *HistorianService) Run() {
	database.ConnectDB()

	go hs.readRedisLoop()
	go hs.flushLoop()

	log.Println("jass-historian service started.")
	<-hs.ctx.Done()
	hs.flushBatchToDB()
	log.Println("jass-historian shutting down.")
}

// readRedisLoop blocks on the queue and accumulates records into the batch.
func (hs *HistorianService) readRedisLoop() {
	for {
		select {
		case <-hs.ctx.Done():
			return
		default:
		}

		res, err := hs.redisClient.BLPop(hs.ctx, 2*time.Second, hs.queueName).Result()
		if err != nil {
			if err == redis.Nil || hs.ctx.Err() != nil {
				continue
			}
			log.Printf("BLPop error: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}

		var rec cache.PlayRecord
		if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
			log.Printf("skipping malformed play record: %v", err)
			continue
		}

		hs.batchMu.Lock()
		hs.batch = append(hs.batch, rec)
		full := len(hs.batch) >= hs.batchSize
		hs.batchMu.Unlock()
		if full {
			hs.flushBatchToDB()
		}
	}
}

// flushLoop periodically persists whatever accumulated.
func (hs *HistorianService) flushLoop() {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()
	for {
		select {
		case <-hs.ctx.Done():
			return
		case <-ticker.C:
			hs.flushBatchToDB()
		}
	}
}

func (hs *HistorianService) flushBatchToDB() {
	hs.batchMu.Lock()
	if len(hs.batch) == 0 {
		hs.batchMu.Unlock()
		return
	}
	records := hs.batch
	hs.batch = make([]cache.PlayRecord, 0, hs.batchSize)
	hs.batchMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := database.InsertPlayRecords(ctx, records); err != nil {
		log.Printf("failed to persist %d play record(s): %v", len(records), err)
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func main() {
	hs := NewHistorianService()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		<-sigs
		hs.cancelFn()
	}()

	hs.Run()
}
