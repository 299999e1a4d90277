package model

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
)

// Solution assigns a position and a volume to every musician slot.
type Solution struct {
	Placements []geom.Point `json:"placements"`
	Volumes    []float64    `json:"volumes"`
}

// NewSolution returns a solution for the given placements at unit volume.
func NewSolution(placements []geom.Point) Solution {
	vols := make([]float64, len(placements))
	for i := range vols {
		vols[i] = 1
	}
	return Solution{Placements: placements, Volumes: vols}
}

// Clone returns a deep copy.
func (s Solution) Clone() Solution {
	return Solution{
		Placements: append([]geom.Point(nil), s.Placements...),
		Volumes:    append([]float64(nil), s.Volumes...),
	}
}

// Transpose mirrors every placement across the diagonal.
func (s Solution) Transpose() Solution {
	out := s.Clone()
	for i, p := range out.Placements {
		out.Placements[i] = p.Transpose()
	}
	return out
}

// UnmarshalJSON defaults missing volumes to 1.
func (s *Solution) UnmarshalJSON(b []byte) error {
	type wire Solution
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.Volumes == nil {
		w.Volumes = make([]float64, len(w.Placements))
		for i := range w.Volumes {
			w.Volumes[i] = 1
		}
	}
	*s = Solution(w)
	return nil
}

// ReadSolution decodes a solution.
func ReadSolution(r io.Reader) (Solution, error) {
	var s Solution
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Solution{}, fmt.Errorf("decode solution: %w", err)
	}
	return s, nil
}

// WriteSolution encodes a solution.
func WriteSolution(w io.Writer, s Solution) error {
	return json.NewEncoder(w).Encode(s)
}
