//go:build component
// +build component

package component

func (s *ComponentTestSuite) TestContactCreatesConversation() {
	given, when, then := s.gherkin()

	given().
		aRecyclerAndACollectionCenter()

	when().
		theRecyclerContactsTheCenter()

	then().
		theConversationIsCreated().
		bothParticipantsListTheConversation().
		theConversationHoldsMessages(1).
		aNotificationWillEventuallyBeProducedFor(s.theCenter)
}

func (s *ComponentTestSuite) TestContactIsIdempotent() {
	given, when, then := s.gherkin()

	given().
		anExistingConversation()

	when().
		theRecyclerContactsTheCenter()

	then().
		theExistingConversationIsReturned().
		theConversationHoldsMessages(1)
}

func (s *ComponentTestSuite) TestReplyInConversation() {
	given, when, then := s.gherkin()

	given().
		anExistingConversation()

	when().
		theCenterReplies()

	then().
		theConversationHoldsMessages(2).
		theLastMessageIsTheReply().
		anOutsiderCannotReadTheConversation().
		aNotificationWillEventuallyBeProducedFor(s.theRecycler)
}
