package extract

import "github.com/JakeFAU/profile-crawler/internal/crawler"

// Locators holds the preference-ordered locators for every field.
type Locators struct {
	Timestamp        crawler.LocatorSet
	LikeCount        crawler.LocatorSet
	CommentContainer crawler.LocatorSet
	CommentItems     crawler.LocatorSet
	Caption          crawler.LocatorSet
	LoadMore         crawler.LocatorSet
	Next             crawler.LocatorSet
	FirstPost        crawler.LocatorSet
	UsernameField    crawler.LocatorSet
	PasswordField    crawler.LocatorSet
	LoginSubmit      crawler.LocatorSet
}

// DefaultLocators targets the current Instagram post dialog. The XPath
// entries are kept as last resorts for older layouts.
func DefaultLocators() Locators {
	return Locators{
		Timestamp: crawler.LocatorSet{
			crawler.CSS("article time[datetime]"),
			crawler.CSS("time[datetime]"),
			crawler.XPath("//time"),
		},
		LikeCount: crawler.LocatorSet{
			crawler.CSS(`section a[href$="/liked_by/"] span`),
			crawler.CSS(`a[href*="/liked_by/"] span`),
			crawler.XPath("//section[2]/div/div/span/a/span/span"),
		},
		CommentContainer: crawler.LocatorSet{
			crawler.CSS("article ul"),
			crawler.XPath("//ul"),
		},
		CommentItems: crawler.LocatorSet{
			crawler.CSS(`article ul > div > li span[dir="auto"]`),
			crawler.XPath("//ul/div/li/div/div/div[2]/div[1]/span"),
		},
		Caption: crawler.LocatorSet{
			crawler.CSS("article ul > div > li h1"),
			crawler.CSS("article h1"),
		},
		LoadMore: crawler.LocatorSet{
			crawler.CSS(`button:has(svg[aria-label="Load more comments"])`),
			crawler.CSS(`button[aria-label="Load more comments"]`),
		},
		Next: crawler.LocatorSet{
			crawler.CSS(`button:has(svg[aria-label="Next"])`),
			crawler.XPath(`//button[contains(@class, "_abl-")]`),
		},
		FirstPost: crawler.LocatorSet{
			crawler.CSS(`main article a[href*="/p/"]`),
			crawler.CSS(`main a[href*="/p/"]`),
			crawler.CSS(`main a[href*="/reel/"]`),
		},
		UsernameField: crawler.LocatorSet{crawler.CSS(`input[name="username"]`)},
		PasswordField: crawler.LocatorSet{crawler.CSS(`input[name="password"]`)},
		LoginSubmit: crawler.LocatorSet{
			crawler.CSS(`button[type="submit"]`),
			crawler.XPath(`//button[@type="submit"]`),
		},
	}
}

// Override replaces each set of l with the corresponding set from overrides when that one is non-empty.
func (l Locators) Override(overrides Locators) Locators {
	pick := func(base, over crawler.LocatorSet) crawler.LocatorSet {
		if len(over) > 0 {
			return over
		}
		return base
	}
	l.Timestamp = pick(l.Timestamp, overrides.Timestamp)
	l.LikeCount = pick(l.LikeCount, overrides.LikeCount)
	l.CommentContainer = pick(l.CommentContainer, overrides.CommentContainer)
	l.CommentItems = pick(l.CommentItems, overrides.CommentItems)
	l.Caption = pick(l.Caption, overrides.Caption)
	l.LoadMore = pick(l.LoadMore, overrides.LoadMore)
	l.Next = pick(l.Next, overrides.Next)
	l.FirstPost = pick(l.FirstPost, overrides.FirstPost)
	l.UsernameField = pick(l.UsernameField, overrides.UsernameField)
	l.PasswordField = pick(l.PasswordField, overrides.PasswordField)
	l.LoginSubmit = pick(l.LoginSubmit, overrides.LoginSubmit)
	return l
}
