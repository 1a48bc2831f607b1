package legs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jengzang/legs-backend-go/internal/models"
)

func attLeg(id, deviceID int64, startMin, endMin int, user *int64) models.Leg {
	return models.Leg{
		ID:        id,
		DeviceID:  deviceID,
		UserID:    user,
		TimeStart: t0.Add(time.Duration(startMin) * time.Minute),
		TimeEnd:   t0.Add(time.Duration(endMin) * time.Minute),
		Activity:  models.ActivityWalking,
	}
}

func TestResolveAttachments(t *testing.T) {
	uid := int64(7)

	tests := []struct {
		name string
		legs []models.Leg
		want []int64
	}{
		{
			name: "consecutive legs of one device",
			legs: []models.Leg{attLeg(1, 1, 0, 10, nil), attLeg(2, 1, 10, 20, nil)},
			want: []int64{1, 2},
		},
		{
			name: "short legs win over a long leg of another device",
			legs: []models.Leg{attLeg(1, 1, 0, 60, nil), attLeg(2, 2, 0, 20, nil), attLeg(3, 2, 25, 50, nil)},
			want: []int64{2, 3},
		},
		{
			name: "continues after attached legs",
			legs: []models.Leg{attLeg(1, 1, 0, 10, &uid), attLeg(2, 1, 10, 20, nil)},
			want: []int64{2},
		},
		{
			name: "leg inside an attached leg stays out",
			legs: []models.Leg{attLeg(1, 1, 0, 60, &uid), attLeg(2, 2, 10, 20, nil)},
			want: nil,
		},
		{
			name: "identical intervals prefer the lower device",
			legs: []models.Leg{attLeg(5, 2, 0, 10, nil), attLeg(6, 1, 0, 10, nil)},
			want: []int64{6},
		},
		{
			name: "nothing eligible",
			legs: []models.Leg{attLeg(1, 1, 0, 10, &uid)},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveAttachments(uid, tt.legs))
		})
	}
}
