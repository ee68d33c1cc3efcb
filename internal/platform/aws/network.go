package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// EC2API is the subset of the EC2 client used for reclaiming leaked
// network resources.
type EC2API interface {
	DescribeAddresses(ctx context.Context, params *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error)
	ReleaseAddress(ctx context.Context, params *ec2.ReleaseAddressInput, optFns ...func(*ec2.Options)) (*ec2.ReleaseAddressOutput, error)
	DescribeNatGateways(ctx context.Context, params *ec2.DescribeNatGatewaysInput, optFns ...func(*ec2.Options)) (*ec2.DescribeNatGatewaysOutput, error)
	DeleteNatGateway(ctx context.Context, params *ec2.DeleteNatGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DeleteNatGatewayOutput, error)
}

// Address is an elastic IP allocation.
type Address struct {
	AllocationID string
	PublicIP     string
}

// Gateway is a NAT gateway together with the elastic IP allocations it
// holds. The allocations can only be released once the gateway is gone.
type Gateway struct {
	ID            string
	State         string
	AllocationIDs []string
}

// NetworkJanitor reclaims unattached elastic IPs and stuck NAT gateways.
type NetworkJanitor struct {
	client       EC2API
	pollInterval time.Duration
}

// NewNetworkJanitor creates a network janitor.
func NewNetworkJanitor(client EC2API) *NetworkJanitor {
	return &NetworkJanitor{client: client, pollInterval: 5 * time.Second}
}

// ListOrphanAddresses returns managed elastic IPs with no association.
func (j *NetworkJanitor) ListOrphanAddresses(ctx context.Context) ([]Address, error) {
	out, err := j.client.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{
		Filters: []types.Filter{
			{Name: aws.String("tag:" + TagManaged), Values: []string{TagManagedValue}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe addresses: %w", err)
	}

	var orphans []Address
	for _, a := range out.Addresses {
		if a.AssociationId != nil {
			continue
		}
		orphans = append(orphans, Address{
			AllocationID: aws.ToString(a.AllocationId),
			PublicIP:     aws.ToString(a.PublicIp),
		})
	}
	return orphans, nil
}

// ReleaseAddress releases an elastic IP allocation. An allocation that
// is already gone counts as success.
func (j *NetworkJanitor) ReleaseAddress(ctx context.Context, allocationID string) error {
	_, err := j.client.ReleaseAddress(ctx, &ec2.ReleaseAddressInput{
		AllocationId: aws.String(allocationID),
	})
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to release address %s: %w", allocationID, err)
	}
	return nil
}

// ListAbandonedGateways returns managed NAT gateways left behind by an
// interrupted destroy: gateways that failed to provision, or healthy
// ones explicitly marked pending-cleanup. Gateways already deleted or on
// their way out are skipped.
func (j *NetworkJanitor) ListAbandonedGateways(ctx context.Context) ([]Gateway, error) {
	out, err := j.client.DescribeNatGateways(ctx, &ec2.DescribeNatGatewaysInput{
		Filter: []types.Filter{
			{Name: aws.String("tag:" + TagManaged), Values: []string{TagManagedValue}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe NAT gateways: %w", err)
	}

	var abandoned []Gateway
	for _, gw := range out.NatGateways {
		switch gw.State {
		case types.NatGatewayStateDeleted, types.NatGatewayStateDeleting:
			continue
		case types.NatGatewayStateFailed:
			// Failed gateways still pin their allocation.
		default:
			if !hasTag(gw.Tags, TagPendingCleanup, TagPendingCleanupValue) {
				continue
			}
		}

		g := Gateway{
			ID:    aws.ToString(gw.NatGatewayId),
			State: string(gw.State),
		}
		for _, addr := range gw.NatGatewayAddresses {
			if addr.AllocationId != nil {
				g.AllocationIDs = append(g.AllocationIDs, aws.ToString(addr.AllocationId))
			}
		}
		abandoned = append(abandoned, g)
	}
	return abandoned, nil
}

// DeleteGateway requests deletion of a NAT gateway. A gateway that is
// already gone counts as success.
func (j *NetworkJanitor) DeleteGateway(ctx context.Context, id string) error {
	_, err := j.client.DeleteNatGateway(ctx, &ec2.DeleteNatGatewayInput{
		NatGatewayId: aws.String(id),
	})
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete NAT gateway %s: %w", id, err)
	}
	return nil
}

// WaitGatewayDeleted polls until the gateway reaches the deleted state
// or the settle deadline passes. The allocation a gateway holds cannot
// be released before this.
func (j *NetworkJanitor) WaitGatewayDeleted(ctx context.Context, id string, deadline time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()

	for {
		out, err := j.client.DescribeNatGateways(waitCtx, &ec2.DescribeNatGatewaysInput{
			NatGatewayIds: []string{id},
		})
		if err != nil {
			if IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to poll NAT gateway %s: %w", id, err)
		}
		if len(out.NatGateways) == 0 || out.NatGateways[0].State == types.NatGatewayStateDeleted {
			return nil
		}

		select {
		case <-waitCtx.Done():
			return fmt.Errorf("NAT gateway %s not deleted within %s: %w", id, deadline, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func hasTag(tags []types.Tag, key, value string) bool {
	for _, t := range tags {
		if aws.ToString(t.Key) == key && aws.ToString(t.Value) == value {
			return true
		}
	}
	return false
}
