package notify

import (
	"fmt"
	"strings"
)

// Customer-facing copy. Recipients are served in French.

// RegistrationConfirmation is sent to the sender once a package is registered.
func RegistrationConfirmation(packageID int64, trackingNumber, phone string) Notification {
	return pending(packageID, KindRegistrationConfirmation, ChannelSMS, phone,
		"Confirmation d'enregistrement de colis",
		fmt.Sprintf("Votre colis %s a été enregistré avec succès. Suivi: %s", trackingNumber, trackingNumber))
}

// IncomingPackage is sent to the recipient once a package is registered.
func IncomingPackage(packageID int64, trackingNumber, phone string) Notification {
	return pending(packageID, KindIncomingPackage, ChannelSMS, phone,
		"Notification de colis en attente",
		fmt.Sprintf("Un colis (%s) vous est destiné. Statut actuel: En attente.", trackingNumber))
}

// DeliverySuccess is sent to the recipient when the package is handed over.
func DeliverySuccess(packageID int64, trackingNumber, phone string) Notification {
	return pending(packageID, KindDeliverySuccess, ChannelSMS, phone,
		"Colis livré",
		fmt.Sprintf("Votre colis %s a été remis avec succès.", trackingNumber))
}

// DeliveryFailed is sent to the recipient when a delivery attempt fails.
func DeliveryFailed(packageID int64, trackingNumber, phone, reason string) Notification {
	return pending(packageID, KindDeliveryFailed, ChannelSMS, phone,
		"Échec de livraison",
		fmt.Sprintf("La livraison de votre colis %s a échoué: %s. Une nouvelle tentative sera planifiée.", trackingNumber, reason))
}

// DeliveryReturned is sent to the recipient when a failed attempt ends with
// the package going back to its sender.
func DeliveryReturned(packageID int64, trackingNumber, phone, reason string) Notification {
	return pending(packageID, KindStatusChange, ChannelSMS, phone,
		"Colis retourné",
		fmt.Sprintf("La livraison de votre colis %s a échoué: %s. Le colis est retourné à l'expéditeur.", trackingNumber, reason))
}

// StatusChange is sent to the recipient when the package reaches a final status.
func StatusChange(packageID int64, trackingNumber, phone, status string) Notification {
	return pending(packageID, KindStatusChange, ChannelSMS, phone,
		"Mise à jour de votre colis",
		fmt.Sprintf("Votre colis %s est maintenant: %s.", trackingNumber, status))
}

// WithEmail returns n followed by an EMAIL copy of it when email is set.
func WithEmail(n Notification, email *string) []Notification {
	out := []Notification{n}
	if email == nil || strings.TrimSpace(*email) == "" {
		return out
	}
	copied := n
	copied.Channel = ChannelEmail
	copied.Recipient = strings.TrimSpace(*email)
	return append(out, copied)
}

func pending(packageID int64, kind Kind, channel Channel, to, subject, body string) Notification {
	return Notification{
		PackageID: packageID,
		Kind:      kind,
		Channel:   channel,
		Recipient: to,
		Subject:   subject,
		Body:      body,
		Status:    StatusPending,
	}
}
