package sighting

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxNameLength = 80

var coordsPattern = regexp.MustCompile(`^(-?\d+(?:\.\d+)?),\s*(-?\d+(?:\.\d+)?)$`)

var ErrInvalidCoords = errors.New("coordinates must be in 'latitude,longitude' format")

type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ParseCoords accepts "lat,lng" with an optional space after the comma.
func ParseCoords(raw string) (Coords, error) {
	match := coordsPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return Coords{}, ErrInvalidCoords
	}

	lat, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return Coords{}, ErrInvalidCoords
	}
	lng, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		return Coords{}, ErrInvalidCoords
	}

	if lat < -90 || lat > 90 {
		return Coords{}, fmt.Errorf("latitude must be between -90 and 90")
	}
	if lng < -180 || lng > 180 {
		return Coords{}, fmt.Errorf("longitude must be between -180 and 180")
	}

	return Coords{Lat: lat, Lng: lng}, nil
}

func (c Coords) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

// Author is the public part of the submitting user.
type Author struct {
	ID             string  `json:"id"`
	Email          string  `json:"email"`
	Username       *string `json:"username"`
	Description    *string `json:"description"`
	ProfilePicture *string `json:"profile_picture"`
}

type Sighting struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Notes     *string   `json:"notes"`
	Coords    Coords    `json:"coords"`
	Image     *string   `json:"image"`
	User      *Author   `json:"user"`
	CreatedAt time.Time `json:"created_date"`
}

type Input struct {
	Name   string  `json:"name"`
	Notes  *string `json:"notes"`
	Coords string  `json:"coords"`
	Image  *string `json:"image"`
}

// Validate escapes the free-text fields and checks every field. The name
// limit applies to the escaped form, which is what gets stored.
func (in Input) Validate() (Input, Coords, error) {
	name := html.EscapeString(strings.TrimSpace(in.Name))
	if name == "" {
		return Input{}, Coords{}, errors.New("name cannot be empty")
	}
	if !utf8.ValidString(name) || utf8.RuneCountInString(name) > maxNameLength {
		return Input{}, Coords{}, fmt.Errorf("name cannot be longer than %d characters", maxNameLength)
	}

	var notes *string
	if in.Notes != nil {
		if !utf8.ValidString(*in.Notes) {
			return Input{}, Coords{}, errors.New("notes must be valid text")
		}
		escaped := html.EscapeString(strings.TrimSpace(*in.Notes))
		notes = &escaped
	}

	coords, err := ParseCoords(in.Coords)
	if err != nil {
		return Input{}, Coords{}, err
	}

	var image *string
	if in.Image != nil && strings.TrimSpace(*in.Image) != "" {
		parsed, err := uuid.Parse(strings.TrimSpace(*in.Image))
		if err != nil {
			return Input{}, Coords{}, errors.New("image must be an image id")
		}
		id := parsed.String()
		image = &id
	}

	return Input{Name: name, Notes: notes, Coords: coords.String(), Image: image}, coords, nil
}
