// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev room already exists.
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log"
	"os"
	"time"

	"attendance-verification-engine/internal/config"
	"attendance-verification-engine/internal/db"
	devicekeydomain "attendance-verification-engine/internal/devicekey/domain"
	devicekeyrepo "attendance-verification-engine/internal/devicekey/repository"
	"attendance-verification-engine/internal/geo"
	lecturedomain "attendance-verification-engine/internal/lecture/domain"
	lecturerepo "attendance-verification-engine/internal/lecture/repository"
	roomdomain "attendance-verification-engine/internal/room/domain"
	roomrepo "attendance-verification-engine/internal/room/repository"
)

const (
	devRoomID    = "room-dev-001"
	devLectureID = "lec-dev-001"
	devStudentID = "student-dev-001"
	devDeviceID  = "device-dev-001"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
		os.Exit(1)
	}

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer sqlDB.Close()

	ctx := context.Background()
	rooms := roomrepo.NewPostgresRepository(sqlDB)
	lectures := lecturerepo.NewPostgresRepository(sqlDB)
	deviceKeys := devicekeyrepo.NewPostgresRepository(sqlDB)

	if existing, err := rooms.GetByID(ctx, devRoomID); err != nil {
		log.Fatalf("seed: %v", err)
	} else if existing != nil {
		log.Printf("seed: room %s already exists, nothing to do", devRoomID)
		return
	}

	now := time.Now().UTC()

	room := &roomdomain.Room{
		ID:       devRoomID,
		Name:     "Dev Lab",
		Building: "Main",
		Floor:    1,
		Capacity: 30,
		Vertices: []geo.Point{
			{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10},
		},
		FloorAltitudeM:       0,
		CeilingAltitudeM:     3,
		ReferencePressureHPa: 1013.25,
		RefLat:               12.9716,
		RefLng:               77.5946,
		CalibratedAt:         now,
	}
	room.ApplyDefaults()
	if err := room.Validate(); err != nil {
		log.Fatalf("seed: room: %v", err)
	}
	if err := rooms.Upsert(ctx, room); err != nil {
		log.Fatalf("seed: room: %v", err)
	}

	lecture := &lecturedomain.Lecture{
		ID:       devLectureID,
		RoomID:   devRoomID,
		Title:    "Intro to Distributed Systems",
		StartsAt: now.Add(-5 * time.Minute),
		EndsAt:   now.Add(2 * time.Hour),
	}
	if err := lectures.Create(ctx, lecture); err != nil {
		log.Fatalf("seed: lecture: %v", err)
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Fatalf("seed: keygen: %v", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		log.Fatalf("seed: keygen: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		log.Fatalf("seed: keygen: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	if err := deviceKeys.Create(ctx, &devicekeydomain.DeviceKey{
		StudentID:    devStudentID,
		DeviceID:     devDeviceID,
		PublicKeyPEM: string(pubPEM),
		RegisteredAt: now,
	}); err != nil {
		log.Fatalf("seed: device key: %v", err)
	}

	log.Printf("seed: created room %s, lecture %s, device key for %s", devRoomID, devLectureID, devStudentID)
	fmt.Println("Dev device private key (sign biometric assertions with this):")
	fmt.Println(string(privPEM))
}
