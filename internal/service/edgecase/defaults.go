package edgecase

import "voiceassist/internal/models"

func user(s string) models.ExampleLine      { return models.ExampleLine{Role: models.RoleUser, Content: s} }
func assistant(s string) models.ExampleLine { return models.ExampleLine{Role: models.RoleAssistant, Content: s} }

// Defaults returns the scenarios documented out of the box.
func Defaults() []*models.EdgeCase {
	return []*models.EdgeCase{
		{
			CaseName:         "Ambiguous date",
			Scenario:         "The customer asks for \"next Friday\" on a Thursday, which could mean tomorrow or the Friday after.",
			HandlingStrategy: "Resolve both readings to calendar dates and ask the customer to pick one before booking.",
			ExampleConversation: []models.ExampleLine{
				user("Can I come in next Friday?"),
				assistant("Just to be sure, do you mean tomorrow, March 6th, or Friday March 13th?"),
				user("The 13th."),
				assistant("Great, Friday March 13th it is. What time works for you?"),
			},
		},
		{
			CaseName:         "Requested slot already taken",
			Scenario:         "The customer asks for a time that is already booked.",
			HandlingStrategy: "Say the slot is unavailable and offer the two closest free slots on the same day.",
			ExampleConversation: []models.ExampleLine{
				user("Book me a haircut tomorrow at 3pm."),
				assistant("3pm tomorrow is taken. I can do 2:30pm or 4pm. Would either work?"),
				user("4pm is fine."),
				assistant("Done. You're booked for a haircut tomorrow at 4pm."),
			},
		},
		{
			CaseName:         "Cancellation without details",
			Scenario:         "The customer wants to cancel but gives no date or service.",
			HandlingStrategy: "Look up the customer's upcoming appointments and confirm which one to cancel. Never cancel on a guess.",
			ExampleConversation: []models.ExampleLine{
				user("I need to cancel my appointment."),
				assistant("I see a haircut on Monday at 10am and a color treatment on Thursday at 2pm. Which one should I cancel?"),
				user("Monday."),
				assistant("Your Monday 10am haircut is cancelled."),
			},
		},
		{
			CaseName:         "Unclear audio",
			Scenario:         "The recording is too noisy or too quiet to transcribe with confidence.",
			HandlingStrategy: "Do not act on a low-confidence transcript. Ask the customer to repeat or to type the request.",
			ExampleConversation: []models.ExampleLine{
				user("[Voice input]"),
				assistant("Sorry, I couldn't quite hear that. Could you say it again, or type your request?"),
			},
		},
		{
			CaseName:         "Outside business hours",
			Scenario:         "The customer asks for a time when the business is closed.",
			HandlingStrategy: "State the opening hours and propose the nearest open slot.",
			ExampleConversation: []models.ExampleLine{
				user("Can I get an appointment Sunday at 8am?"),
				assistant("We're closed on Sundays. The earliest opening is Monday at 9am. Shall I book that?"),
			},
		},
	}
}
