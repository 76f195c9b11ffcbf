// Package cli is the line-oriented terminal front end of the chat client.
//
// On start the user is asked for a room (prefilled from an invite link when
// one was given), a display name and the room password, which is read
// without echo. Every other line is sent to the room. Lines starting with a
// slash are commands:
//
//	/join [room]   switch rooms, prompting for name and password
//	/leave         leave the current room
//	/clear         delete the room history for everyone
//	/who           show who is online and typing
//	/invite        print the invite link of the room
//	/help          list commands
//	/quit          leave and exit
//
// Messages, notices and presence changes are printed as they arrive.
package cli
