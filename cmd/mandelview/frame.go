// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"image"
	"time"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/image/draw"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/mandel"
)

// printer formats numbers with digit grouping for status lines and tables.
var printer = message.NewPrinter(language.English)

// aspectHalfHeight returns halfWidth * height / width as a decimal string, so
// the viewport keeps square pixels.
func aspectHalfHeight(halfWidth string, width, height int) (string, bool) {
	if width <= 0 || height <= 0 {
		return "", false
	}
	hw, _, err := apd.NewFromString(halfWidth)
	if err != nil || hw.Form != apd.Finite || hw.Sign() <= 0 {
		return "", false
	}

	ctx := apd.BaseContext.WithPrecision(uint32(max(len(halfWidth), 34)))
	var num, hh apd.Decimal
	if _, err := ctx.Mul(&num, hw, apd.New(int64(height), 0)); err != nil {
		return "", false
	}
	if _, err := ctx.Quo(&hh, &num, apd.New(int64(width), 0)); err != nil {
		return "", false
	}
	hh.Reduce(&hh)
	return hh.Text('g'), true
}

// scaleFrame resamples img to width×height. A frame that already has that
// size is returned as is.
func scaleFrame(img *image.RGBA, width, height int, interp draw.Interpolator) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(width, 1), max(height, 1)))
	interp.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// status summarizes the session state in one line.
func status(s *mandel.Session) string {
	st := s.Stats()
	v := s.Viewport()
	line := printer.Sprintf("gen %d · budget %d · %d workers · center (%s, %s) · half width %s",
		st.Generation, st.Budget, st.Workers, v.CenterX, v.CenterY, v.HalfWidth)
	if st.LastPassDuration > 0 {
		line += printer.Sprintf(" · %v", st.LastPassDuration.Round(time.Millisecond))
	}
	if st.PrecisionExhausted {
		line += " · precision exhausted"
	}
	return line
}
