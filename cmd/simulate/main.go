package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

type addressPayload struct {
	Address  string  `json:"address"`
	Location point   `json:"location"`
}

type point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type createBookingPayload struct {
	ID          string         `json:"id"`
	Pickup      addressPayload `json:"pickup"`
	Dropoff     addressPayload `json:"dropoff"`
	VehicleType string         `json:"vehicleType"`
}

func main() {
	api := flag.String("api", "http://localhost:8080", "API base URL")
	customerToken := flag.String("customer-token", "", "customer bearer token")
	driverToken := flag.String("driver-token", "", "driver bearer token")
	pickupLat := flag.Float64("pickup-lat", 12.9716, "pickup latitude")
	pickupLon := flag.Float64("pickup-lon", 77.5946, "pickup longitude")
	dropoffLat := flag.Float64("dropoff-lat", 12.9352, "dropoff latitude")
	dropoffLon := flag.Float64("dropoff-lon", 77.6245, "dropoff longitude")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	bookingID, err := createBooking(client, *api, *customerToken, createBookingPayload{
		ID: fmt.Sprintf("sim-%d", time.Now().UnixNano()),
		Pickup: addressPayload{
			Address:  "Simulated pickup",
			Location: point{Latitude: *pickupLat, Longitude: *pickupLon},
		},
		Dropoff: addressPayload{
			Address:  "Simulated dropoff",
			Location: point{Latitude: *dropoffLat, Longitude: *dropoffLon},
		},
		VehicleType: "2_wheeler",
	})
	if err != nil {
		log.Fatalf("create booking failed: %v", err)
	}
	log.Printf("booking created: %s", bookingID)

	if err := acceptBooking(client, *api, *driverToken, bookingID); err != nil {
		log.Fatalf("accept failed: %v", err)
	}
	log.Printf("booking accepted")
}

func createBooking(client *http.Client, api, token string, payload createBookingPayload) (string, error) {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest("POST", fmt.Sprintf("%s/api/bookings", api), bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("create booking status: %s", resp.Status)
	}
	var res map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", err
	}
	if id, ok := res["id"].(string); ok {
		return id, nil
	}
	return "", fmt.Errorf("booking id missing in response")
}

func acceptBooking(client *http.Client, api, token, bookingID string) error {
	req, err := http.NewRequest("POST", fmt.Sprintf("%s/api/bookings/%s/accept", api, bookingID), nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("accept status: %s", resp.Status)
	}
	return nil
}

func init() {
	log.SetOutput(os.Stdout)
}
