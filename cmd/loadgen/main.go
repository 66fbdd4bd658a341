// loadgen publishes synthetic sprint registrations to the ingest topic.
// Useful for exercising the consumer path and filling boards during
// development.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// registration mirrors the ingest payload accepted by the consumer
type registration struct {
	Event   string  `json:"event"`
	Device  string  `json:"device"`
	Country string  `json:"country"`
	Time    string  `json:"time"`
	T       string  `json:"t"`
	Nonce   string  `json:"nonce"`
	Sig     string  `json:"sig"`
	Name    string  `json:"name"`
	Age     *int    `json:"age"`
	Gender  *string `json:"gender"`
}

var countries = []string{"US", "DE", "FR", "GB", "JP", "BR", "KE", "AU", "NL", "ES"}

var firstNames = []string{
	"Ann", "Ben", "Carla", "Derek", "Elena", "Farid", "Grace", "Hugo", "Ida", "Jonas",
	"Kaya", "Liam", "Mira", "Noah", "Olga", "Pavel", "Quinn", "Rosa", "Sven", "Tara",
}

func randomRegistration(event string, r *rand.Rand) registration {
	country := countries[r.Intn(len(countries))]
	timeSec := 8.0 + r.Float64()*12.0
	var age *int
	if r.Intn(4) > 0 {
		a := 12 + r.Intn(60)
		age = &a
	}
	var gender *string
	if r.Intn(3) > 0 {
		g := []string{"female", "male", "other"}[r.Intn(3)]
		gender = &g
	}
	return registration{
		Event:   event,
		Device:  fmt.Sprintf("device-%02d", r.Intn(20)),
		Country: country,
		Time:    strconv.FormatFloat(timeSec, 'f', 2, 64),
		T:       strconv.FormatInt(time.Now().Unix(), 10),
		Nonce:   uuid.New().String(),
		Sig:     "loadgen",
		Name:    firstNames[r.Intn(len(firstNames))] + " " + string(rune('A'+r.Intn(26))) + ".",
		Age:     age,
		Gender:  gender,
	}
}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "sprint-results", "Kafka topic")
	event := flag.String("event", "city-sprint", "Event id stamped on registrations")
	rate := flag.Int("rate", 50, "Registrations per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(strings.Split(*brokers, ","), config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	log.Printf("producing registrations to %s at %d/sec", *topic, *rate)

	shutdown := func() {
		producer.AsyncClose()
		wg.Wait()
		log.Printf("done. sent: %d, errors: %d",
			atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	for {
		select {
		case <-sigChan:
			log.Println("shutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				log.Println("duration reached, shutting down...")
				shutdown()
				return
			}

			reg := randomRegistration(*event, rng)
			data, err := json.Marshal(reg)
			if err != nil {
				log.Printf("Failed to marshal message: %v", err)
				continue
			}
			producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(reg.Country),
				Value: sarama.ByteEncoder(data),
			}

		case <-statsTicker.C:
			log.Printf("sent: %d, errors: %d",
				atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
		}
	}
}
