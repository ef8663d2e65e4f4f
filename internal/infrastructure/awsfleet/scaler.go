// Package awsfleet implements the fleet scaler and metric source against
// AWS: an Auto Scaling group carries the desired count and CloudWatch
// serves the load signals.
package awsfleet

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// AutoScalingAPI is the subset of the Auto Scaling client the scaler uses.
type AutoScalingAPI interface {
	SetDesiredCapacity(ctx context.Context, in *autoscaling.SetDesiredCapacityInput, opts ...func(*autoscaling.Options)) (*autoscaling.SetDesiredCapacityOutput, error)
}

// Scaler implements [domain.FleetScaler] on an Auto Scaling group.
type Scaler struct {
	Client    AutoScalingAPI
	GroupName string
	// HonorCooldown defers to the ASG's own cooldown on top of the
	// controller's. Off by default; the controller owns hysteresis.
	HonorCooldown bool
}

func (s *Scaler) SetDesiredCount(ctx context.Context, n int) error {
	_, err := s.Client.SetDesiredCapacity(ctx, &autoscaling.SetDesiredCapacityInput{
		AutoScalingGroupName: aws.String(s.GroupName),
		DesiredCapacity:      aws.Int32(int32(n)),
		HonorCooldown:        aws.Bool(s.HonorCooldown),
	})
	if err != nil {
		return fmt.Errorf("set desired capacity on %q: %w", s.GroupName, err)
	}
	return nil
}

var _ domain.FleetScaler = (*Scaler)(nil)
