package catalog

const defaultCatalog = `
[[components]]
type = "hero"
label = "Hero"
fields = [
  { name = "title", label = "Name", kind = "text" },
  { name = "subtitle", label = "Tagline", kind = "text" },
  { name = "image_url", label = "Headshot URL", kind = "url" },
]
[components.defaults]
title = "Your Name"
subtitle = "Author, Speaker, Expert"
[components.source]
full_name = "title"
tagline = "subtitle"
headshot = "image_url"

[[components]]
type = "biography"
label = "Biography"
fields = [
  { name = "name", kind = "text" },
  { name = "bio", label = "Biography", kind = "textarea" },
  { name = "location", kind = "text" },
]
[components.defaults]
bio = "Share your story here."
[components.source]
biography = "bio"
long_bio = "bio"

[[components]]
type = "topics"
label = "Speaking Topics"
fields = [
  { name = "heading", kind = "text" },
  { name = "topics", kind = "list" },
]
[components.defaults]
heading = "Speaking Topics"
topics = []
[components.source]
topic_list = "topics"

[[components]]
type = "questions"
label = "Interview Questions"
fields = [
  { name = "heading", kind = "text" },
  { name = "questions", kind = "list" },
]
[components.defaults]
heading = "Suggested Questions"
questions = []
[components.source]
question_list = "questions"

[[components]]
type = "video-intro"
label = "Video Introduction"
fields = [
  { name = "heading", kind = "text" },
  { name = "video_url", label = "Video URL", kind = "url" },
  { name = "description", kind = "textarea" },
]
[components.defaults]
heading = "Watch My Introduction"

[[components]]
type = "guest-intro"
label = "Guest Introduction"
fields = [
  { name = "heading", kind = "text" },
  { name = "intro", label = "Introduction", kind = "textarea" },
]
[components.defaults]
heading = "Introducing Your Guest"

[[components]]
type = "contact"
label = "Contact"
fields = [
  { name = "email", kind = "text" },
  { name = "phone", kind = "text" },
  { name = "website", kind = "url" },
]
[components.source]
contact_email = "email"

[[components]]
type = "social"
label = "Social Links"
fields = [
  { name = "twitter", kind = "url" },
  { name = "linkedin", label = "LinkedIn", kind = "url" },
  { name = "instagram", kind = "url" },
]
`
