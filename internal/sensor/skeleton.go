// Package sensor provides the boundary between skeleton trackers and the
// gesture engine: feature extraction and sources of feature frames.
package sensor

import (
	"math"

	"github.com/ayusman/mudra/internal/gesture"
)

// Joint indices of the tracked upper-body skeleton.
const (
	HandLeft = iota
	WristLeft
	ElbowLeft
	ElbowRight
	WristRight
	HandRight
	ShoulderLeft
	ShoulderRight
	NumJoints
)

// FeatureJoints lists the joints that contribute to a feature frame, in order.
var FeatureJoints = [...]int{HandLeft, WristLeft, ElbowLeft, ElbowRight, WristRight, HandRight}

// Dimension is the length of the frames produced by Skeleton.Features.
const Dimension = len(FeatureJoints) * 2

// Point3D is a joint position in tracker space.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Skeleton is one tracked body pose.
type Skeleton struct {
	Joints [NumJoints]Point3D `json:"joints"`
}

// Features returns the 2D positions of the arm joints relative to the centre
// of the shoulders, scaled so the shoulders are one unit apart.
//
// When both shoulders coincide the frame is all NaN, which the live buffer
// rejects.
func (s *Skeleton) Features() gesture.Frame {
	left := s.Joints[ShoulderLeft]
	right := s.Joints[ShoulderRight]

	cx := (left.X + right.X) / 2
	cy := (left.Y + right.Y) / 2
	scale := math.Hypot(left.X-right.X, left.Y-right.Y)

	frame := make(gesture.Frame, 0, Dimension)
	for _, j := range FeatureJoints {
		p := s.Joints[j]
		if scale < 1e-10 {
			frame = append(frame, math.NaN(), math.NaN())
			continue
		}
		frame = append(frame, (p.X-cx)/scale, (p.Y-cy)/scale)
	}
	return frame
}

// RestPose returns a skeleton standing with both arms hanging down.
func RestPose() Skeleton {
	var s Skeleton
	s.Joints[ShoulderLeft] = Point3D{X: -0.2, Y: 0.5, Z: 2}
	s.Joints[ShoulderRight] = Point3D{X: 0.2, Y: 0.5, Z: 2}
	s.Joints[ElbowLeft] = Point3D{X: -0.25, Y: 0.2, Z: 2}
	s.Joints[ElbowRight] = Point3D{X: 0.25, Y: 0.2, Z: 2}
	s.Joints[WristLeft] = Point3D{X: -0.25, Y: -0.05, Z: 2}
	s.Joints[WristRight] = Point3D{X: 0.25, Y: -0.05, Z: 2}
	s.Joints[HandLeft] = Point3D{X: -0.25, Y: -0.12, Z: 2}
	s.Joints[HandRight] = Point3D{X: 0.25, Y: -0.12, Z: 2}
	return s
}

// RaisedRightPose returns a skeleton with the right hand raised above the head.
func RaisedRightPose() Skeleton {
	s := RestPose()
	s.Joints[ElbowRight] = Point3D{X: 0.35, Y: 0.75, Z: 2}
	s.Joints[WristRight] = Point3D{X: 0.35, Y: 1.0, Z: 2}
	s.Joints[HandRight] = Point3D{X: 0.35, Y: 1.08, Z: 2}
	return s
}
