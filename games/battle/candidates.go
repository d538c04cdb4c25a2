/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package battle

import (
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

const (
	maxNameLength  = 100
	imageURIPrefix = "data:image/"
)

type Candidate struct {
	ID    int    `json:"id"`
	Owner string `json:"owner"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// CandidateStore holds the submissions of a single lobby. Ids increase
// monotonically and are never handed out twice, even after a delete.
type CandidateStore struct {
	candidates   []Candidate
	nextID       int
	frozen       bool
	maxImageSize int64
}

func NewCandidateStore(maxImageSize int64) *CandidateStore {
	return &CandidateStore{
		maxImageSize: maxImageSize,
	}
}

// Submit validates and stores a candidate for owner, who may hold at most
// limit live candidates at once.
func (s *CandidateStore) Submit(owner, name, image string, limit int) (Candidate, error) {
	if s.frozen {
		return Candidate{}, Errorf(ErrInvalidState, "Submissions are closed.")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return Candidate{}, Errorf(ErrValidation, "Candidate name must not be empty.")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return Candidate{}, Errorf(ErrValidation, "Candidate name must be at most %d characters.", maxNameLength)
	}

	if err := s.validateImage(image); err != nil {
		return Candidate{}, err
	}

	if s.countOwned(owner) >= limit {
		return Candidate{}, Errorf(ErrLimitExceeded, "You have reached the maximum limit of %d candidates.", limit)
	}

	c := Candidate{
		ID:    s.nextID,
		Owner: owner,
		Name:  name,
		Image: image,
	}
	s.nextID++
	s.candidates = append(s.candidates, c)

	return c, nil
}

func (s *CandidateStore) validateImage(image string) error {
	if image == "" {
		return Errorf(ErrValidation, "An image is required.")
	}

	if !strings.HasPrefix(image, imageURIPrefix) || !strings.Contains(image, ",") {
		return Errorf(ErrValidation, "Image must be an uploaded picture.")
	}

	if s.maxImageSize > 0 {
		payload := image[strings.IndexByte(image, ',')+1:]

		// base64 packs 3 bytes into every 4 characters
		decoded := int64(len(payload)) * 3 / 4
		if decoded > s.maxImageSize {
			return Errorf(ErrValidation, "Image is too large (%s, maximum is %s).",
				humanize.Bytes(uint64(decoded)),
				humanize.Bytes(uint64(s.maxImageSize)))
		}
	}

	return nil
}

// Delete removes the candidate with the given id if owner submitted it.
func (s *CandidateStore) Delete(owner string, id int) error {
	if s.frozen {
		return Errorf(ErrInvalidState, "Submissions are closed.")
	}

	for i, c := range s.candidates {
		if c.ID == id && c.Owner == owner {
			s.candidates = append(s.candidates[:i], s.candidates[i+1:]...)

			return nil
		}
	}

	return Errorf(ErrNotFound, "Candidate not found.")
}

// RemoveOwner drops every candidate owned by owner and reports how many
// were removed.
func (s *CandidateStore) RemoveOwner(owner string) int {
	if s.frozen {
		return 0
	}

	dst := s.candidates[:0]
	removed := 0

	for _, c := range s.candidates {
		if c.Owner == owner {
			removed++
			continue
		}
		dst = append(dst, c)
	}
	s.candidates = dst

	return removed
}

// Owned returns owner's candidates in submission order.
func (s *CandidateStore) Owned(owner string) []Candidate {
	out := []Candidate{}

	for _, c := range s.candidates {
		if c.Owner == owner {
			out = append(out, c)
		}
	}

	return out
}

func (s *CandidateStore) countOwned(owner string) int {
	n := 0
	for _, c := range s.candidates {
		if c.Owner == owner {
			n++
		}
	}
	return n
}

func (s *CandidateStore) Len() int {
	return len(s.candidates)
}

func (s *CandidateStore) Frozen() bool {
	return s.frozen
}

// Freeze closes the store to further edits and returns a copy of the pool
// in submission order.
func (s *CandidateStore) Freeze() []Candidate {
	s.frozen = true

	pool := make([]Candidate, len(s.candidates))
	copy(pool, s.candidates)

	return pool
}
