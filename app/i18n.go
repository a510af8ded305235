package app

import (
	"github.com/gin-gonic/gin"
)

const LangCookie = "lang"

var Languages = []string{"en", "el"}

var messages = map[string]map[string]string{
	"en": {
		"nav.dashboard":   "Dashboard",
		"nav.inventory":   "Inventory",
		"nav.bookings":    "Bookings",
		"nav.kits":        "Kits",
		"nav.notes":       "Notes",
		"nav.missions":    "Missions",
		"nav.my_shifts":   "My shifts",
		"nav.leaderboard": "Leaderboard",
		"nav.certificates": "Certificates",
		"nav.exams":        "Exams & quizzes",
		"nav.tasks":        "Tasks",
		"nav.training_board": "Training ranking",
		"nav.users":       "Users",
		"nav.departments": "Departments",
		"nav.newsletters": "Newsletters",
		"nav.email_log":   "Email log",
		"nav.audit":       "Audit log",
		"nav.update":      "Update",
		"nav.logout":      "Log out",

		"login.title":    "Sign in",
		"login.username": "Email",
		"login.password": "Password",
		"login.submit":   "Sign in",
		"login.passkey":  "Sign in with a passkey",
		"login.failed":   "Wrong email or password.",

		"status.available":    "Available",
		"status.booked":       "Booked",
		"status.maintenance":  "Maintenance",
		"status.damaged":      "Damaged",
		"status.active":       "Active",
		"status.overdue":      "Overdue",
		"status.returned":     "Returned",
		"status.lost":         "Lost",
		"status.on_time":      "On time",
		"status.due_soon":     "Due soon",
		"status.pending":      "Pending",
		"status.acknowledged": "Acknowledged",
		"status.in_progress":  "In progress",
		"status.resolved":     "Resolved",
		"status.archived":     "Archived",
		"status.approved":     "Approved",
		"status.rejected":     "Rejected",
		"status.todo":         "To do",
		"status.done":         "Done",
		"status.canceled":     "Canceled",
		"status.valid":        "Valid",
		"status.expiring":     "Expiring",
		"status.expired":      "Expired",
		"status.revoked":      "Revoked",

		"ok.saved":          "Saved.",
		"ok.deleted":        "Deleted.",
		"ok.booked":         "Item booked.",
		"ok.returned":       "Item returned.",
		"ok.marked_lost":    "Booking marked as lost.",
		"ok.note_added":     "Note added.",
		"ok.note_moved":     "Note updated.",
		"ok.kit_booked":     "Kit booked.",
		"ok.kit_returned":   "Kit returned.",
		"ok.applied":        "Application sent.",
		"ok.decided":        "Request updated.",
		"ok.attendance":     "Attendance recorded.",
		"ok.invite_sent":    "Invitation sent.",
		"ok.newsletter":     "Newsletter sent.",
		"ok.resent":         "Email sent again.",
		"ok.up_to_date":     "Already up to date.",
		"ok.updated":        "Update installed.",
		"ok.update_found":   "A new version is available.",
		"ok.certificate_issued": "Certificate issued.",
		"exam.passed":       "Passed.",
		"exam.failed":       "Not passed.",
		"kit.partial":       "Some kit items could not be processed.",
		"err.not_found":     "Record not found.",
		"err.duplicate":     "A record with this value already exists.",
		"err.invalid_input": "Please check the form values.",
		"err.item_not_available":  "This item is not available.",
		"err.item_booked":         "This item is currently booked.",
		"err.booking_not_active":  "This booking is not active.",
		"err.nothing_to_book":     "No kit items are available.",
		"err.nothing_to_return":   "No kit items are booked.",
		"err.item_has_history":    "This item has booking history and cannot be deleted.",
		"err.kit_in_use":          "The kit still has booked items.",
		"err.department_in_use":   "The department still has members.",
		"err.already_applied":     "You already applied to this shift.",
		"err.shift_full":          "This shift is full.",
		"err.mission_not_open":    "This mission is not open.",
		"err.invalid_state":       "This action is not allowed in the current state.",
		"err.invite_used":         "This invitation was already used or has expired.",
		"err.forbidden":           "You do not have access to this record.",
		"err.invalid_transition":  "This status change is not allowed.",
		"err.unknown_action":      "Unknown action.",
		"err.internal":            "Something went wrong. Please try again.",
		"err.update_failed":       "Update failed.",
	},
	"el": {
		"nav.dashboard":   "Πίνακας",
		"nav.inventory":   "Εξοπλισμός",
		"nav.bookings":    "Χρεώσεις",
		"nav.kits":        "Σετ",
		"nav.notes":       "Σημειώσεις",
		"nav.missions":    "Αποστολές",
		"nav.my_shifts":   "Οι βάρδιές μου",
		"nav.leaderboard": "Κατάταξη",
		"nav.certificates": "Πιστοποιητικά",
		"nav.tasks":        "Εργασίες",
		"nav.users":       "Χρήστες",
		"nav.departments": "Τμήματα",
		"nav.newsletters": "Ενημερωτικά",
		"nav.email_log":   "Αρχείο email",
		"nav.audit":       "Αρχείο ενεργειών",
		"nav.update":      "Ενημέρωση",
		"nav.logout":      "Αποσύνδεση",

		"login.title":    "Σύνδεση",
		"login.username": "Email",
		"login.password": "Κωδικός",
		"login.submit":   "Σύνδεση",
		"login.passkey":  "Σύνδεση με passkey",
		"login.failed":   "Λάθος email ή κωδικός.",

		"status.available":   "Διαθέσιμο",
		"status.booked":      "Χρεωμένο",
		"status.maintenance": "Συντήρηση",
		"status.damaged":     "Κατεστραμμένο",
		"status.active":      "Ενεργή",
		"status.overdue":     "Εκπρόθεσμη",
		"status.returned":    "Επιστράφηκε",
		"status.lost":        "Χάθηκε",
		"status.on_time":     "Εντός χρόνου",
		"status.due_soon":    "Λήγει σύντομα",
		"status.pending":     "Σε αναμονή",
		"status.approved":    "Εγκρίθηκε",
		"status.rejected":    "Απορρίφθηκε",
		"status.valid":       "Σε ισχύ",
		"status.expired":     "Έληξε",

		"ok.saved":                "Αποθηκεύτηκε.",
		"ok.deleted":              "Διαγράφηκε.",
		"ok.booked":               "Το υλικό χρεώθηκε.",
		"ok.returned":             "Το υλικό επιστράφηκε.",
		"ok.applied":              "Η αίτηση στάλθηκε.",
		"err.not_found":           "Η εγγραφή δεν βρέθηκε.",
		"err.invalid_input":       "Ελέγξτε τα στοιχεία της φόρμας.",
		"err.item_not_available":  "Το υλικό δεν είναι διαθέσιμο.",
		"err.booking_not_active":  "Η χρέωση δεν είναι ενεργή.",
		"err.shift_full":          "Η βάρδια είναι πλήρης.",
		"err.already_applied":     "Έχετε ήδη κάνει αίτηση για αυτή τη βάρδια.",
		"err.forbidden":           "Δεν έχετε πρόσβαση σε αυτή την εγγραφή.",
		"err.internal":            "Κάτι πήγε στραβά. Δοκιμάστε ξανά.",
	},
}

// T translates key, falling back to English and then to the key itself.
func T(lang, key string) string {
	if m, ok := messages[lang]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	if s, ok := messages["en"][key]; ok {
		return s
	}
	return key
}

func Lang(c *gin.Context) string {
	if ck, err := c.Cookie(LangCookie); err == nil {
		for _, l := range Languages {
			if ck == l {
				return l
			}
		}
	}
	return "en"
}
