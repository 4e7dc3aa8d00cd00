package domain

import (
	"errors"
	"testing"
)

func TestDeliveryDetailsResolve(t *testing.T) {
	tests := []struct {
		name        string
		details     DeliveryDetails
		wantType    DeliveryType
		wantAddress string
		wantErr     error
	}{
		{
			name: "delivery without apartment",
			details: DeliveryDetails{
				PhoneNumber: "+380501112233", DeliveryType: "delivery",
				City: "Kyiv", Street: "Shevchenka", Building: "5", Apartment: "",
			},
			wantType:    DeliveryTypeDelivery,
			wantAddress: "м. Kyiv, вул. Shevchenka, буд. 5",
		},
		{
			name: "delivery with apartment and mixed case type",
			details: DeliveryDetails{
				PhoneNumber: "+380501112233", DeliveryType: "DeLiVeRy",
				City: "Lviv", Street: "Rynok", Building: "1", Apartment: "12",
			},
			wantType:    DeliveryTypeDelivery,
			wantAddress: "м. Lviv, вул. Rynok, буд. 1, кв. 12",
		},
		{
			name: "blank apartment is skipped",
			details: DeliveryDetails{
				PhoneNumber: "1", DeliveryType: "delivery",
				City: "Kyiv", Street: "Khreshchatyk", Building: "22", Apartment: "   ",
			},
			wantType:    DeliveryTypeDelivery,
			wantAddress: "м. Kyiv, вул. Khreshchatyk, буд. 22",
		},
		{
			name:        "pickup",
			details:     DeliveryDetails{PhoneNumber: "1", DeliveryType: "pickup", PickupPoint: "Central"},
			wantType:    DeliveryTypePickup,
			wantAddress: "Самовивіз: Central",
		},
		{
			name:    "missing phone checked first",
			details: DeliveryDetails{PhoneNumber: " ", DeliveryType: "teleport"},
			wantErr: ErrMissingPhoneNumber,
		},
		{
			name:    "delivery without building",
			details: DeliveryDetails{PhoneNumber: "1", DeliveryType: "delivery", City: "Kyiv", Street: "Shevchenka"},
			wantErr: ErrIncompleteDeliveryAddress,
		},
		{
			name:    "pickup without point",
			details: DeliveryDetails{PhoneNumber: "1", DeliveryType: "pickup", PickupPoint: "  "},
			wantErr: ErrMissingPickupPoint,
		},
		{
			name:    "unknown type",
			details: DeliveryDetails{PhoneNumber: "1", DeliveryType: "courier"},
			wantErr: ErrInvalidDeliveryType,
		},
		{
			name:    "empty type",
			details: DeliveryDetails{PhoneNumber: "1"},
			wantErr: ErrInvalidDeliveryType,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotType, gotAddress, err := tc.details.Resolve()
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("error=%v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotType != tc.wantType {
				t.Fatalf("type=%s, want %s", gotType, tc.wantType)
			}
			if gotAddress != tc.wantAddress {
				t.Fatalf("address=%q, want %q", gotAddress, tc.wantAddress)
			}
		})
	}
}
