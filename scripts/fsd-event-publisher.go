package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Конфигурация тестовых данных
type TestConfig struct {
	BrokerURL   string
	TopicPrefix string
	Aircraft    int
	PublishRate time.Duration
	MaxMessages int
	ClientID    string
	RandomSeed  int64
	CenterLat   float64
	CenterLon   float64
	RemoveEvery int // каждые N тиков одно судно уходит из сети, 0 = никогда
}

// AircraftState состояние симулированного судна
type AircraftState struct {
	Callsign    string
	Latitude    float64
	Longitude   float64
	AltitudeFt  float64
	GroundSpeed float64 // узлы
	Heading     float64
	Squawk      int
	GearDown    bool
}

// TestPublisher публикует события FSD сети в формате моста
type TestPublisher struct {
	client   mqtt.Client
	config   *TestConfig
	rand     *rand.Rand
	aircraft []*AircraftState
	stop     chan struct{}
}

var airlines = []string{"DLH", "AFR", "BAW", "KLM", "SWR", "AUA", "EZY", "RYR"}

func main() {
	var (
		brokerURL   = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
		prefix      = flag.String("prefix", "fsd/events", "Topic prefix")
		count       = flag.Int("aircraft", 20, "Number of simulated aircraft")
		rate        = flag.Duration("rate", 5*time.Second, "Position publish rate")
		maxMessages = flag.Int("max", 0, "Max messages (0 = unlimited)")
		clientID    = flag.String("client", "fsd-event-publisher", "MQTT client ID")
		seed        = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
		lat         = flag.Float64("lat", 50.03, "Center latitude")
		lon         = flag.Float64("lon", 8.57, "Center longitude")
		removeEvery = flag.Int("remove-every", 0, "Remove one aircraft every N ticks")
	)
	flag.Parse()

	config := &TestConfig{
		BrokerURL:   *brokerURL,
		TopicPrefix: *prefix,
		Aircraft:    *count,
		PublishRate: *rate,
		MaxMessages: *maxMessages,
		ClientID:    *clientID,
		RandomSeed:  *seed,
		CenterLat:   *lat,
		CenterLon:   *lon,
		RemoveEvery: *removeEvery,
	}

	publisher, err := NewTestPublisher(config)
	if err != nil {
		log.Fatalf("Ошибка создания издателя: %v", err)
	}

	fmt.Printf("Публикация событий FSD в %s (prefix %q)\n", config.BrokerURL, config.TopicPrefix)
	fmt.Printf("Судов: %d, частота: %v, центр: %.4f, %.4f\n",
		config.Aircraft, config.PublishRate, config.CenterLat, config.CenterLon)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		publisher.Start()
		close(done)
	}()

	select {
	case <-sigChan:
		fmt.Println("Получен сигнал завершения")
		publisher.Stop()
		<-done
	case <-done:
		fmt.Println("Публикация завершена")
	}
}

// NewTestPublisher подключается к брокеру и создает начальный трафик
func NewTestPublisher(config *TestConfig) (*TestPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.BrokerURL)
	opts.SetClientID(config.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("ошибка подключения к MQTT брокеру: %w", token.Error())
	}

	rng := rand.New(rand.NewSource(config.RandomSeed))
	p := &TestPublisher{
		client: client,
		config: config,
		rand:   rng,
		stop:   make(chan struct{}),
	}
	for i := 0; i < config.Aircraft; i++ {
		p.aircraft = append(p.aircraft, p.newAircraft(i))
	}
	return p, nil
}

func (p *TestPublisher) newAircraft(i int) *AircraftState {
	return &AircraftState{
		Callsign:    fmt.Sprintf("%s%d", airlines[i%len(airlines)], 100+p.rand.Intn(900)),
		Latitude:    p.config.CenterLat + p.rand.Float64()*2 - 1,
		Longitude:   p.config.CenterLon + p.rand.Float64()*2 - 1,
		AltitudeFt:  float64(3000 + p.rand.Intn(35000)),
		GroundSpeed: float64(180 + p.rand.Intn(300)),
		Heading:     float64(p.rand.Intn(360)),
		Squawk:      1000 + p.rand.Intn(6777),
	}
}

// Start публикует позиции до Stop или MaxMessages
func (p *TestPublisher) Start() {
	p.publish("connection", "", map[string]string{"from": "connecting", "to": "connected"})
	p.publishAtc()

	for i, ac := range p.aircraft {
		p.publishParts(ac, false)
		if i%2 == 0 {
			p.publish("parts_support", ac.Callsign, map[string]bool{"supported": true})
		}
	}

	messageCount := 0
	tick := 0
	ticker := time.NewTicker(p.config.PublishRate)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			p.publish("connection", "", map[string]string{"from": "connected", "to": "disconnected"})
			p.client.Disconnect(250)
			return
		case <-ticker.C:
			tick++
			for _, ac := range p.aircraft {
				p.move(ac)
				p.publishPosition(ac)
				messageCount++

				// шасси выпускаются ниже 3000 футов
				if gear := ac.AltitudeFt < 3000; gear != ac.GearDown {
					ac.GearDown = gear
					p.publishParts(ac, true)
				}
			}

			if p.config.RemoveEvery > 0 && tick%p.config.RemoveEvery == 0 && len(p.aircraft) > 0 {
				idx := p.rand.Intn(len(p.aircraft))
				p.publish("removed", p.aircraft[idx].Callsign, struct{}{})
				p.aircraft[idx] = p.newAircraft(idx)
			}

			if tick%10 == 0 {
				fmt.Printf("Отправлено %d позиций\n", messageCount)
			}
			if p.config.MaxMessages > 0 && messageCount >= p.config.MaxMessages {
				p.client.Disconnect(250)
				return
			}
		}
	}
}

// Stop останавливает публикацию
func (p *TestPublisher) Stop() {
	close(p.stop)
}

// move сдвигает судно по курсу за один интервал
func (p *TestPublisher) move(ac *AircraftState) {
	hours := p.config.PublishRate.Hours()
	distNM := ac.GroundSpeed * hours
	rad := ac.Heading * math.Pi / 180

	ac.Latitude += distNM / 60 * math.Cos(rad)
	ac.Longitude += distNM / 60 * math.Sin(rad) / math.Cos(ac.Latitude*math.Pi/180)
	ac.Latitude = math.Max(-89, math.Min(89, ac.Latitude))
	if ac.Longitude > 180 {
		ac.Longitude -= 360
	} else if ac.Longitude < -180 {
		ac.Longitude += 360
	}

	ac.Heading = math.Mod(ac.Heading+p.rand.Float64()*6-3+360, 360)
	ac.AltitudeFt = math.Max(0, ac.AltitudeFt+p.rand.Float64()*1000-500)
}

func (p *TestPublisher) publishPosition(ac *AircraftState) {
	p.publish("position", ac.Callsign, map[string]interface{}{
		"lat":       ac.Latitude,
		"lon":       ac.Longitude,
		"alt_ft":    ac.AltitudeFt,
		"heading":   ac.Heading,
		"gs_kt":     ac.GroundSpeed,
		"on_ground": ac.AltitudeFt == 0,
		"squawk":    ac.Squawk,
		"xpdr_mode": "c",
		"ts":        time.Now().UnixMilli(),
	})
}

func (p *TestPublisher) publishParts(ac *AircraftState, incremental bool) {
	body := map[string]interface{}{
		"gear_down":   ac.GearDown,
		"incremental": incremental,
		"ts":          time.Now().UnixMilli(),
	}
	if !incremental {
		body["lights"] = map[string]bool{"beacon": true, "nav": true, "strobe": true}
		body["flaps_pct"] = 0
		body["spoilers_out"] = false
		body["engines"] = []map[string]interface{}{{"number": 1, "on": true}, {"number": 2, "on": true}}
	}
	p.publish("parts", ac.Callsign, body)
}

func (p *TestPublisher) publishAtc() {
	stations := []struct {
		callsign  string
		frequency float64
		rangeNM   float64
	}{
		{"EDDF_TWR", 119.9, 50},
		{"EDDF_APP", 120.8, 150},
		{"EDGG_CTR", 124.725, 300},
	}
	for _, st := range stations {
		p.publish("atc", st.callsign, map[string]interface{}{
			"controller":      "Test Controller",
			"frequency":       st.frequency,
			"lat":             p.config.CenterLat,
			"lon":             p.config.CenterLon,
			"visual_range_nm": st.rangeNM,
			"online":          true,
			"atis":            st.callsign + " information Alpha",
		})
	}
}

// publish отправляет JSON в топик {prefix}/{event}[/{callsign}]
func (p *TestPublisher) publish(event, callsign string, body interface{}) {
	topic := p.config.TopicPrefix + "/" + event
	if callsign != "" {
		topic += "/" + callsign
	}

	payload, err := json.Marshal(body)
	if err != nil {
		log.Printf("Ошибка сериализации %s: %v", topic, err)
		return
	}

	token := p.client.Publish(topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		log.Printf("Ошибка публикации %s: %v", topic, token.Error())
	}
}
