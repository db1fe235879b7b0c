package application_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/keyflash/internal/application"
	"github.com/ericfisherdev/keyflash/internal/domain/model"
)

func TestCheckCompatibility(t *testing.T) {
	left := &model.Device{ID: "l", Side: model.SideLeft}
	right := &model.Device{ID: "r", Side: model.SideRight}
	plain := &model.Device{ID: "k"}

	leftFw := &model.Firmware{Name: "corne_left.uf2"}
	rightFw := &model.Firmware{Name: "corne_right.uf2"}
	otherFw := &model.Firmware{Name: "kyria.uf2"}

	tests := []struct {
		name   string
		device *model.Device
		fw     *model.Firmware
		want   model.Compatibility
	}{
		{name: "left device, left firmware", device: left, fw: leftFw, want: model.Compatible},
		{name: "left device, right firmware", device: left, fw: rightFw, want: model.Incompatible},
		{name: "right device, right firmware", device: right, fw: rightFw, want: model.Compatible},
		{name: "right device, left firmware", device: right, fw: leftFw, want: model.Incompatible},
		{name: "right device, sideless firmware", device: right, fw: otherFw, want: model.Compatible},
		{name: "no side accepts anything", device: plain, fw: leftFw, want: model.Compatible},
		{name: "match is case sensitive", device: left, fw: &model.Firmware{Name: "corne_LEFT.uf2"}, want: model.Incompatible},
		{name: "no firmware", device: left, fw: nil, want: model.CompatibilityUnknown},
		{name: "no device", device: nil, fw: leftFw, want: model.CompatibilityUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, application.CheckCompatibility(tc.device, tc.fw))
		})
	}
}

func TestCheckCompatibility_UnknownIsNotFalse(t *testing.T) {
	got := application.CheckCompatibility(&model.Device{Side: model.SideLeft}, nil)
	assert.Nil(t, got.Bool())
}
