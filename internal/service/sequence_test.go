package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/quotation-engine/internal/domain"
)

var allocateAt = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func TestSequenceAllocatorFirstNumberOfPeriod(t *testing.T) {
	t.Parallel()

	repo := &fakeQuotationRepo{
		highestDocumentNumberFn: func(ctx context.Context, prefix string, year int) (string, error) {
			if prefix != "QT" || year != 2025 {
				t.Fatalf("queried prefix/year = %s/%d, want QT/2025", prefix, year)
			}
			return "", domain.ErrNotFound
		},
	}

	allocator, err := NewSequenceAllocator(repo, "qt", nil)
	if err != nil {
		t.Fatalf("NewSequenceAllocator() error = %v", err)
	}

	got, err := allocator.Allocate(context.Background(), allocateAt)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got != "QT-2025-000001" {
		t.Fatalf("Allocate() = %s, want QT-2025-000001", got)
	}
}

func TestSequenceAllocatorIncrementsHighest(t *testing.T) {
	t.Parallel()

	repo := &fakeQuotationRepo{
		highestDocumentNumberFn: func(ctx context.Context, prefix string, year int) (string, error) {
			return "QT-2025-000041", nil
		},
	}

	allocator, err := NewSequenceAllocator(repo, "QT", nil)
	if err != nil {
		t.Fatalf("NewSequenceAllocator() error = %v", err)
	}

	got, err := allocator.Allocate(context.Background(), allocateAt)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got != "QT-2025-000042" {
		t.Fatalf("Allocate() = %s, want QT-2025-000042", got)
	}
}

func TestSequenceAllocatorResumesAfterRandomSuffixNumber(t *testing.T) {
	t.Parallel()

	existing := map[string]bool{
		"QT-2025-000007": true,
		"QT-2025-AB12CD": true,
	}
	sequential := regexp.MustCompile(`^QT-2025-[0-9]{6}$`)
	repo := &fakeQuotationRepo{
		highestDocumentNumberFn: func(ctx context.Context, prefix string, year int) (string, error) {
			// The store only reports sequential six digit suffixes, so
			// the lexically greater random suffix never becomes the
			// period maximum.
			highest := ""
			for number := range existing {
				if sequential.MatchString(number) && number > highest {
					highest = number
				}
			}
			if highest == "" {
				return "", domain.ErrNotFound
			}
			return highest, nil
		},
		documentNumberExistsFn: func(ctx context.Context, documentNumber string) (bool, error) {
			return existing[documentNumber], nil
		},
	}

	allocator, err := NewSequenceAllocator(repo, "QT", nil)
	if err != nil {
		t.Fatalf("NewSequenceAllocator() error = %v", err)
	}

	got, err := allocator.Allocate(context.Background(), allocateAt)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got != "QT-2025-000008" {
		t.Fatalf("Allocate() = %s, want QT-2025-000008", got)
	}
}

func TestSequenceAllocatorSkipsCollisions(t *testing.T) {
	t.Parallel()

	taken := map[string]bool{
		"QT-2025-000042": true,
		"QT-2025-000043": true,
	}
	repo := &fakeQuotationRepo{
		highestDocumentNumberFn: func(ctx context.Context, prefix string, year int) (string, error) {
			return "QT-2025-000041", nil
		},
		documentNumberExistsFn: func(ctx context.Context, documentNumber string) (bool, error) {
			return taken[documentNumber], nil
		},
	}

	allocator, err := NewSequenceAllocator(repo, "QT", nil)
	if err != nil {
		t.Fatalf("NewSequenceAllocator() error = %v", err)
	}

	got, err := allocator.Allocate(context.Background(), allocateAt)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got != "QT-2025-000044" {
		t.Fatalf("Allocate() = %s, want QT-2025-000044", got)
	}
}

func TestSequenceAllocatorFallsBackAfterExhaustedAttempts(t *testing.T) {
	t.Parallel()

	repo := &fakeQuotationRepo{
		highestDocumentNumberFn: func(ctx context.Context, prefix string, year int) (string, error) {
			return "QT-2025-000001", nil
		},
		documentNumberExistsFn: func(ctx context.Context, documentNumber string) (bool, error) {
			return true, nil
		},
	}

	allocator, err := NewSequenceAllocator(repo, "QT", nil)
	if err != nil {
		t.Fatalf("NewSequenceAllocator() error = %v", err)
	}
	allocator.randSuffix = func() string { return "AB12CD" }

	got, err := allocator.Allocate(context.Background(), allocateAt)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if got != "QT-2025-AB12CD" {
		t.Fatalf("Allocate() = %s, want random-suffix fallback QT-2025-AB12CD", got)
	}
}

func TestSequenceAllocatorDegradesWhenStoreNotProvisioned(t *testing.T) {
	t.Parallel()

	repo := &fakeQuotationRepo{
		highestDocumentNumberFn: func(ctx context.Context, prefix string, year int) (string, error) {
			return "", fmt.Errorf("%w: quotations table missing", domain.ErrNotProvisioned)
		},
	}

	allocator, err := NewSequenceAllocator(repo, "QT", nil)
	if err != nil {
		t.Fatalf("NewSequenceAllocator() error = %v", err)
	}
	allocator.randSuffix = func() string { return "FFEE00" }

	got, err := allocator.Allocate(context.Background(), allocateAt)
	if err != nil {
		t.Fatalf("Allocate() must degrade, not fail: %v", err)
	}
	if got != "QT-2025-FFEE00" {
		t.Fatalf("Allocate() = %s, want degraded QT-2025-FFEE00", got)
	}
}

func TestSequenceAllocatorDegradesWhenStoreUnreachable(t *testing.T) {
	t.Parallel()

	repo := &fakeQuotationRepo{
		highestDocumentNumberFn: func(ctx context.Context, prefix string, year int) (string, error) {
			return "", errors.New("connection refused")
		},
	}

	allocator, err := NewSequenceAllocator(repo, "QT", nil)
	if err != nil {
		t.Fatalf("NewSequenceAllocator() error = %v", err)
	}

	got, err := allocator.Allocate(context.Background(), allocateAt)
	if err != nil {
		t.Fatalf("Allocate() must degrade, not fail: %v", err)
	}
	if !strings.HasPrefix(got, "QT-2025-") {
		t.Fatalf("Allocate() = %s, want QT-2025-* fallback", got)
	}
}

func TestSequenceAllocatorConcurrentAllocationsAreDistinct(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	existing := map[string]bool{}

	repo := &fakeQuotationRepo{
		highestDocumentNumberFn: func(ctx context.Context, prefix string, year int) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			highest := ""
			for number := range existing {
				if number > highest {
					highest = number
				}
			}
			if highest == "" {
				return "", domain.ErrNotFound
			}
			return highest, nil
		},
		documentNumberExistsFn: func(ctx context.Context, documentNumber string) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if existing[documentNumber] {
				return true, nil
			}
			// Claim on first lookup, mirroring the database unique
			// index the real repository leans on.
			existing[documentNumber] = true
			return false, nil
		},
	}

	allocator, err := NewSequenceAllocator(repo, "QT", nil)
	if err != nil {
		t.Fatalf("NewSequenceAllocator() error = %v", err)
	}

	const n = 20
	results := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := allocator.Allocate(context.Background(), allocateAt)
			if err != nil {
				t.Errorf("Allocate() error = %v", err)
				return
			}
			results <- number
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for number := range results {
		if seen[number] {
			t.Fatalf("duplicate document number %s", number)
		}
		seen[number] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d distinct numbers, want %d", len(seen), n)
	}
}
