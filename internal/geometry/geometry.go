// Package geometry holds the coordinate math of the box editor: conversion
// between pixel and normalized space, box construction from two pointer
// positions, the minimum size gate and resize handle hit testing.
//
// Everything here is pure.
package geometry

import (
	"math"

	"github.com/lewtec/demarcador/internal/domain"
)

const (
	// DefaultMinSize is the smallest box side, in pixels, that gets committed
	DefaultMinSize = 10.0

	// DefaultHandleRadius is the pointer tolerance around resize handles, in pixels
	DefaultHandleRadius = 8.0
)

// Point is a pointer position in pixel space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a box in pixel space
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Right() float64  { return r.Left + r.Width }
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Normalize maps a pixel coordinate to [0,1] relative to dimension
func Normalize(pixel, dimension float64) float64 {
	if dimension <= 0 {
		return 0
	}
	return clamp(pixel/dimension, 0, 1)
}

// Denormalize maps a normalized coordinate back to pixels
func Denormalize(normalized, dimension float64) float64 {
	return normalized * dimension
}

// RectFromPoints builds the box spanned by two corners, whatever the drag direction
func RectFromPoints(p0, p1 Point) Rect {
	return Rect{
		Left:   math.Min(p0.X, p1.X),
		Top:    math.Min(p0.Y, p1.Y),
		Width:  math.Abs(p1.X - p0.X),
		Height: math.Abs(p1.Y - p0.Y),
	}
}

// ValidateMinSize reports whether both sides reach minPx
func ValidateMinSize(r Rect, minPx float64) bool {
	return r.Width >= minPx && r.Height >= minPx
}

// NormalizeRect converts a pixel box into a normalized one. Both corners
// are clamped separately so x+width and y+height never exceed 1.
func NormalizeRect(r Rect, width, height float64) domain.BBox {
	x0 := Normalize(r.Left, width)
	y0 := Normalize(r.Top, height)
	x1 := Normalize(r.Right(), width)
	y1 := Normalize(r.Bottom(), height)
	w, h := x1-x0, y1-y0
	if x0+w > 1 {
		w = 1 - x0
	}
	if y0+h > 1 {
		h = 1 - y0
	}
	return domain.BBox{X: x0, Y: y0, Width: w, Height: h}
}

// DenormalizeBBox converts a normalized box into pixel space
func DenormalizeBBox(b domain.BBox, width, height float64) Rect {
	return Rect{
		Left:   Denormalize(b.X, width),
		Top:    Denormalize(b.Y, height),
		Width:  Denormalize(b.Width, width),
		Height: Denormalize(b.Height, height),
	}
}

// ClampPoint keeps p inside a width x height image
func ClampPoint(p Point, width, height float64) Point {
	return Point{X: clamp(p.X, 0, width), Y: clamp(p.Y, 0, height)}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
