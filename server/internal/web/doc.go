// Package web serves the server-rendered calculator page and the slide deck.
//
// Routes:
//
//	GET  /                                  create a session, redirect to /s/{id}
//	GET  /s/{id}                            render the session
//	POST /s/{id}/terms                      append a term (form body)
//	POST /s/{id}/terms/{termID}/remove      remove a term
//	POST /s/{id}/terms/{termID}/operation   change a term's operation
//	GET  /slides                            render the deck
//
// Successful POSTs redirect back to /s/{id} with 303 See Other. A rejected
// append re-renders the page with the message and the fields as typed.
// Templates are embedded; the page works without JavaScript and only uses a
// short script to follow /ws/sessions/{id} and reload on changes made
// elsewhere.
package web
