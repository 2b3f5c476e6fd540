// Package archive mirrors the lecture database to a Google Drive folder so a
// day's captured lectures survive the host. One file per calendar day; later
// syncs of the same day update the existing file in place.
package archive

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

type Syncer struct {
	service  *drive.Service
	folderID string
	dbPath   string

	mu      sync.Mutex
	fileIDs map[string]string
}

func NewSyncer(ctx context.Context, credPath, folderID, dbPath string) (*Syncer, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Syncer{
		service:  svc,
		folderID: folderID,
		dbPath:   dbPath,
		fileIDs:  make(map[string]string),
	}, nil
}

// Sync uploads the current database snapshot under the given date stamp.
func (s *Syncer) Sync(date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.dbPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.dbPath, err)
	}
	defer func() { _ = f.Close() }()

	if fileID, ok := s.fileIDs[date]; ok {
		_, err = s.service.Files.Update(fileID, &drive.File{}).Media(f).Do()
		if err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	doc, err := s.service.Files.Create(&drive.File{
		Name:    fmt.Sprintf("classcast-%s.db", date),
		Parents: []string{s.folderID},
	}).Media(f).Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	s.fileIDs[date] = doc.Id
	return nil
}

// Run syncs on a fixed interval until the context is canceled. Failures are
// logged and retried on the next tick.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			date := time.Now().UTC().Format("2006-01-02")
			if err := s.Sync(date); err != nil {
				log.Printf("archive: sync %s: %v", date, err)
			}
		}
	}
}
