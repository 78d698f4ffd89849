// Package auth supplies identities to the coordinator.
//
// Password checking is a pluggable rule set, not part of the core. An
// Authenticator turns credentials into a store.Identity; the coordinator
// only ever asks it yes-or-no questions.
//
// # Directory
//
// Directory is the built-in Authenticator. It holds a small set of users
// with bcrypt password hashes:
//
//	demo@example.com / password  -> id "1", "Demo Benutzer"
//	test@example.com / test123   -> id "2", "Test User"
//
// When a demo password is configured, any e-mail address logs in with it
// and receives a fresh identity named after the address's local part.
// E-mail addresses are trimmed and lower-cased before lookup.
//
// Register adds a user to the directory. When the directory has a blob
// store, registered accounts are saved under their own key (hash only,
// never the password) and Restore brings them back in the next process.
// It fails with ErrEmailTaken for known addresses and ErrWeakPassword for
// passwords shorter than the configured minimum.
//
// # Predicates
//
// Hosts with their own rules can wrap a CredentialFunc:
//
//	a := auth.FromPredicate(func(email, password string) bool {
//	    return password == os.Getenv("CONVOY_PASSWORD")
//	}, nil)
package auth
