package conversation

// Fixed replies. Templated replies are built where they are used.
const (
	replyAskReason           = "What is the reason for the visit?"
	replySlotGoneAskAnother  = "That slot is no longer available. Would you like another time?"
	replySlotGoneChoose      = "That slot is no longer available. Please choose another time."
	replyAskPhoneToBook      = "Before I book, what phone number should we use for the appointment?"
	replyAskEmailToCreate    = "I couldn't find your record. What's your email so I can create it?"
	replyDifferentTime       = "No problem. Would you like a different time?"
	replyAskPhone            = "What phone number is the appointment under?"
	replyAskPhoneSure        = "Sure. What phone number is the appointment under?"
	replyAskEmailToComplete  = "What's your email so I can complete the booking?"
	replyNoPatientForPhone   = "I couldn't find an appointment with that phone number."
	replyAppointmentMissing  = "I couldn't find that appointment. Please try again."
	replyCanceled            = "Your appointment has been canceled."
	replyPickAppointment     = "Please reply with the number of the appointment from the list."
	replyPickProvider        = "Please reply with the number of the provider from the list."
	replyPickSlot            = "Please reply with the number of the time from the list."
	replyAskProviderDept     = "Which department should I use for this provider?"
	replyAskDeptOptions      = "Which department should I use? Options: Dermatology, Cardiology, General Medicine, Pediatrics, Orthopedics."
	replyAskRescheduleDept   = "Which department should I reschedule to?"
	replyAskBookDept         = "Which department do you want to book, Dermatology, Cardiology, General Medicine, Pediatrics, or Orthopedics?"
	replyAskDeptToHelp       = "I can help book an appointment. Which department do you need, Dermatology, Cardiology, General Medicine, Pediatrics, or Orthopedics?"
	replyAskZip              = "What is your 5-digit ZIP code so I can find nearby providers?"
	replyDefaultDeptNote     = "I didn't catch a department, so I'm showing General Medicine slots. Say another department if you'd like."
	replyUrgent              = "Thanks for letting us know. Based on what you shared, this sounds urgent. If you are in immediate danger or have severe symptoms, please call emergency services right now. Otherwise, a clinician will review this and reach out shortly."
	replyFAQ                 = "I can answer general questions or help you book an appointment."
	replyCapabilities        = "I can help with booking, rescheduling, cancellations, or urgent concerns. What would you like to do?"
	replyTryAgain            = "Sorry, something went wrong on our side. Please try again in a moment."
	replyPickSlotSuffix      = "Select a slot and I will confirm before booking."
	replyPickRescheduleSlot  = "Select one and I will confirm the reschedule."
	prefixProvidersExact     = "Here are nearby providers. "
	prefixProvidersNearby    = "I couldn't find an exact match in that ZIP, but here are providers nearby. "
	prefixProvidersBroader   = "I couldn't find that specialty nearby, so here are general providers in the area. "
	prefixAnyProvidersNearby = "I couldn't find providers in that ZIP, but here are nearby. "
	prefixAnyProvidersBroad  = "I couldn't find providers in that ZIP, so here are general providers nearby. "
)
