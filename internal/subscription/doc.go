// Package subscription implements the reference-counted instrument
// subscription registry.
//
// Any number of observers may hold interest in one instrument; the backend
// sees a single subscribe when the first arrives and a single unsubscribe
// when the last leaves. The active set is resent after every reconnect.
package subscription
