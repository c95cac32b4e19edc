package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	gosync "sync"
	"syscall"
	"time"

	"github.com/annel0/voxel-world/internal/eventbus"
	vsync "github.com/annel0/voxel-world/internal/sync"
)

const (
	defaultNATSURL = "nats://127.0.0.1:4222"
	timeFormat     = "15:04:05.000"
)

// event-cli читает события мира из NATS JetStream: мутации, расхождения
// предсказаний и служебные события серверов.
func main() {
	var (
		natsURL    = flag.String("nats", defaultNATSURL, "адрес NATS")
		stream     = flag.String("stream", "VOXEL", "имя JetStream стрима")
		command    = flag.String("cmd", "tail", "команда: tail, stats")
		eventTypes = flag.String("types", "", "фильтр типов событий (через запятую)")
		sources    = flag.String("sources", "", "фильтр источников (через запятую)")
		duration   = flag.Duration("for", 10*time.Second, "длительность сбора для stats")
		limit      = flag.Int("limit", 0, "остановиться после N событий (0 = без ограничения)")
	)
	flag.Parse()

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Не удалось подключиться к %s: %v", *natsURL, err)
	}
	defer bus.Close()

	// Decompress понимает оба кодека пакета, сжатие отправителя не важно
	compressor := vsync.NewPassthroughCompressor()

	filter := eventbus.Filter{Types: parseStringList(*eventTypes), Sources: parseStringList(*sources)}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch *command {
	case "tail":
		err = tailEvents(ctx, bus, filter, compressor, *limit)
	case "stats":
		err = showStats(ctx, bus, filter, *duration)
	default:
		fmt.Printf("❌ Неизвестная команда: %s\n", *command)
		fmt.Println("Доступные команды: tail, stats")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %s: %v", *command, err)
	}
}

// tailEvents печатает события до сигнала или лимита
func tailEvents(ctx context.Context, bus eventbus.EventBus, f eventbus.Filter, c vsync.Compressor, limit int) error {
	fmt.Printf("🎬 Читаем события (limit: %d)\n", limit)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu    gosync.Mutex
		count int
	)
	sub, err := bus.Subscribe(ctx, f, func(_ context.Context, ev *eventbus.Envelope) {
		mu.Lock()
		defer mu.Unlock()
		if limit > 0 && count >= limit {
			return
		}
		printEvent(ev, c)
		count++
		if limit > 0 && count >= limit {
			cancel()
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	mu.Lock()
	fmt.Printf("\n📊 Всего событий: %d\n", count)
	mu.Unlock()
	return nil
}

// showStats считает события по типам за интервал
func showStats(ctx context.Context, bus eventbus.EventBus, f eventbus.Filter, d time.Duration) error {
	fmt.Printf("📊 Сбор статистики %s\n", d)

	var mu gosync.Mutex
	byType := make(map[string]int)
	sub, err := bus.Subscribe(ctx, f, func(_ context.Context, ev *eventbus.Envelope) {
		mu.Lock()
		byType[ev.EventType]++
		mu.Unlock()
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	select {
	case <-time.After(d):
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	types := make([]string, 0, len(byType))
	total := 0
	for t, n := range byType {
		types = append(types, t)
		total += n
	}
	sort.Strings(types)
	fmt.Printf("Всего событий: %d\n", total)
	for _, t := range types {
		fmt.Printf("  %s: %d\n", t, byType[t])
	}
	return nil
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope, c vsync.Compressor) {
	fmt.Printf("[%s] %s [%s] %s\n", ev.Timestamp.Format(timeFormat), ev.Source, ev.EventType, ev.ID)

	switch ev.EventType {
	case vsync.EventWorldMutations:
		muts, err := vsync.DecodeMutations(c, ev.Payload)
		if err != nil {
			fmt.Printf("  ⚠️ нагрузка не разобрана: %v\n", err)
		}
		for _, m := range muts {
			fmt.Printf("  #%d (%d,%d,%d) ← %d\n", m.Sequence, m.Pos.X, m.Pos.Y, m.Pos.Z, m.Block)
		}
	case vsync.EventReconciliationMismatch:
		var me vsync.MismatchEvent
		if err := json.Unmarshal(ev.Payload, &me); err != nil {
			fmt.Printf("  ⚠️ нагрузка не разобрана: %v\n", err)
			return
		}
		fmt.Printf("  (%d,%d,%d) предсказано %d, сервер %d (#%d)\n",
			me.Pos.X, me.Pos.Y, me.Pos.Z, me.Predicted, me.Authoritative, me.Sequence)
	default:
		if len(ev.Payload) > 0 {
			fmt.Printf("  %d байт\n", len(ev.Payload))
		}
	}
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
