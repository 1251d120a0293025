package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	api := envOrDefault("API_BASE", "http://localhost:8080")
	wsBase := envOrDefault("WS_BASE", "ws://localhost:8080")

	fmt.Println("Seeding identities...")
	if err := runCmd("go", "run", "./cmd/seed"); err != nil {
		log.Fatalf("seed failed: %v", err)
	}

	customerToken := envOrDefault("CUSTOMER_TOKEN", "")
	driverToken := envOrDefault("DRIVER_TOKEN", "")
	if customerToken == "" || driverToken == "" {
		fmt.Println("Fetch tokens from seed output (customer/driver) and set CUSTOMER_TOKEN/DRIVER_TOKEN env for a non-interactive run.")
	}

	fmt.Println("Sending driver location heartbeat...")
	hbPayload := map[string]any{
		"latitude":  12.9716,
		"longitude": 77.5946,
		"accuracy":  5,
		"timestamp": time.Now().UnixMilli(),
	}
	if err := postJSON(api+"/api/drivers/sim_driver_1/location", driverToken, hbPayload); err != nil {
		log.Fatalf("heartbeat failed: %v", err)
	}

	fmt.Println("Creating booking...")
	bookingID, err := createBooking(api, customerToken, map[string]any{
		"id": fmt.Sprintf("smoke-%d", time.Now().UnixNano()),
		"pickup": map[string]any{
			"address":  "Smoke pickup",
			"location": map[string]float64{"latitude": 12.9716, "longitude": 77.5946},
		},
		"dropoff": map[string]any{
			"address":  "Smoke dropoff",
			"location": map[string]float64{"latitude": 12.9352, "longitude": 77.6245},
		},
		"vehicleType": "2_wheeler",
	})
	if err != nil {
		log.Fatalf("create booking failed: %v", err)
	}
	fmt.Printf("Booking ID: %s\n", bookingID)

	events := make(chan map[string]any, 5)
	go subscribeWS(wsBase, customerToken, events)

	fmt.Println("Accepting booking...")
	if err := postJSON(fmt.Sprintf("%s/api/bookings/%s/accept", api, bookingID), driverToken, nil); err != nil {
		log.Fatalf("accept failed: %v", err)
	}

	waitForStatus(events, "driver_assigned", bookingID)

	fmt.Println("Smoke test complete.")
}

func createBooking(api, token string, payload map[string]any) (string, error) {
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", api+"/api/bookings", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %s", resp.Status)
	}
	var res map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", err
	}
	idVal, ok := res["id"]
	if !ok || idVal == nil {
		return "", fmt.Errorf("booking id missing")
	}
	id, _ := idVal.(string)
	if id == "" {
		return "", fmt.Errorf("booking id missing")
	}
	return id, nil
}

func postJSON(url, token string, payload map[string]any) error {
	var buf bytes.Buffer
	if payload != nil {
		body, _ := json.Marshal(payload)
		buf.Write(body)
	}
	req, _ := http.NewRequest("POST", url, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}

func runCmd(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), "DATABASE_URL="+envOrDefault("DATABASE_URL", ""))
	return cmd.Run()
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func subscribeWS(base, token string, sink chan<- map[string]any) {
	u := base + "/ws"
	parsed, _ := url.Parse(u)
	q := parsed.Query()
	if token != "" {
		q.Set("token", token)
	}
	parsed.RawQuery = q.Encode()

	c, _, err := websocket.DefaultDialer.Dial(parsed.String(), nil)
	if err != nil {
		log.Printf("ws dial failed: %v", err)
		return
	}
	defer c.Close()
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var frame map[string]any
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		payload, _ := frame["payload"].(map[string]any)
		if payload != nil {
			sink <- payload
		}
	}
}

func waitForStatus(events <-chan map[string]any, expect, bookingID string) {
	timeout := time.After(8 * time.Second)
	for {
		select {
		case msg := <-events:
			status, _ := msg["status"].(string)
			if status == "" {
				continue
			}
			if id, ok := msg["id"].(string); ok && id != "" && bookingID != "" && id != bookingID {
				continue
			}
			fmt.Printf("WS update received: %v\n", msg)
			if status == expect {
				return
			}
		case <-timeout:
			log.Fatalf("expected ws status %q not received", expect)
		}
	}
}
