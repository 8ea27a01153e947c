package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	apperrors "github.com/fableloom/fableloom/pkg/errors"
	"github.com/fableloom/fableloom/pkg/party"
	"github.com/fableloom/fableloom/pkg/story"
)

// MongoStore persists stories, pages, choices, and parties in MongoDB.
//
// Every document carries a created_at timestamp; list operations sort on it
// (then _id) so "input order" is creation order, matching MemoryStore and
// the determinism contract of the graph derivations.
type MongoStore struct {
	client   *mongo.Client
	stories  *mongo.Collection
	pages    *mongo.Collection
	choices  *mongo.Collection
	parties  *mongo.Collection
}

// MongoConfig configures the MongoDB connection.
type MongoConfig struct {
	URI      string
	Database string
	// Timeout bounds the initial connect + ping. Zero means 10s.
	Timeout time.Duration
}

// NewMongoStore connects to MongoDB and verifies the connection with a ping.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "ping mongodb")
	}

	db := client.Database(cfg.Database)
	return &MongoStore{
		client:  client,
		stories: db.Collection("stories"),
		pages:   db.Collection("pages"),
		choices: db.Collection("choices"),
		parties: db.Collection("parties"),
	}, nil
}

// creation-ordered documents; the embedded model struct keeps the wire shape
// in one place (pkg/story, pkg/party).
type storyDoc struct {
	story.Story `bson:",inline"`
	CreatedAt   time.Time `bson:"created_at"`
}

type pageDoc struct {
	story.Page `bson:",inline"`
	CreatedAt  time.Time `bson:"created_at"`
}

type choiceDoc struct {
	story.Choice `bson:",inline"`
	CreatedAt    time.Time `bson:"created_at"`
}

var creationOrder = options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

func (s *MongoStore) GetStory(ctx context.Context, storyID string) (*story.Story, error) {
	var doc storyDoc
	err := s.stories.FindOne(ctx, bson.M{"_id": storyID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.New(apperrors.ErrCodeStoryNotFound, "story %q not found", storyID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "get story %s", storyID)
	}
	return &doc.Story, nil
}

func (s *MongoStore) ListStories(ctx context.Context) ([]story.Story, error) {
	cur, err := s.stories.Find(ctx, bson.M{}, creationOrder)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "list stories")
	}
	var docs []storyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "decode stories")
	}
	out := make([]story.Story, len(docs))
	for i, d := range docs {
		out[i] = d.Story
	}
	return out, nil
}

func (s *MongoStore) CreateStory(ctx context.Context, title string) (*story.Story, error) {
	if err := apperrors.ValidateStoryTitle(title); err != nil {
		return nil, err
	}
	doc := storyDoc{
		Story:     story.Story{ID: uuid.NewString(), Title: title, Status: story.StatusDraft},
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.stories.InsertOne(ctx, doc); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "create story")
	}
	return &doc.Story, nil
}

func (s *MongoStore) UpdateStory(ctx context.Context, storyID string, u StoryUpdate) (*story.Story, error) {
	set := bson.M{}
	if u.Title != nil {
		set["title"] = *u.Title
	}
	if u.Status != nil {
		set["status"] = *u.Status
	}
	if len(set) == 0 {
		return s.GetStory(ctx, storyID)
	}

	var doc storyDoc
	err := s.stories.FindOneAndUpdate(ctx,
		bson.M{"_id": storyID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.New(apperrors.ErrCodeStoryNotFound, "story %q not found", storyID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "update story %s", storyID)
	}
	return &doc.Story, nil
}

func (s *MongoStore) DeleteStory(ctx context.Context, storyID string) error {
	res, err := s.stories.DeleteOne(ctx, bson.M{"_id": storyID})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistence, err, "delete story %s", storyID)
	}
	if res.DeletedCount == 0 {
		return apperrors.New(apperrors.ErrCodeStoryNotFound, "story %q not found", storyID)
	}

	// Cascade pages, their choices, and parties.
	cur, err := s.pages.Find(ctx, bson.M{"story_id": storyID})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistence, err, "list pages of story %s", storyID)
	}
	var docs []pageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistence, err, "decode pages of story %s", storyID)
	}
	pageIDs := make([]string, len(docs))
	for i, d := range docs {
		pageIDs[i] = d.Page.ID
	}

	if _, err := s.choices.DeleteMany(ctx, bson.M{"page_id": bson.M{"$in": pageIDs}}); err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistence, err, "cascade choices of story %s", storyID)
	}
	if _, err := s.pages.DeleteMany(ctx, bson.M{"story_id": storyID}); err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistence, err, "cascade pages of story %s", storyID)
	}
	if _, err := s.parties.DeleteMany(ctx, bson.M{"story_id": storyID}); err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistence, err, "cascade parties of story %s", storyID)
	}
	return nil
}

func (s *MongoStore) ListPages(ctx context.Context, storyID string) ([]story.Page, error) {
	cur, err := s.pages.Find(ctx, bson.M{"story_id": storyID}, creationOrder)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "list pages of story %s", storyID)
	}
	var docs []pageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "decode pages of story %s", storyID)
	}
	out := make([]story.Page, len(docs))
	for i, d := range docs {
		out[i] = d.Page
	}
	return out, nil
}

func (s *MongoStore) GetPage(ctx context.Context, pageID string) (*story.Page, error) {
	var doc pageDoc
	err := s.pages.FindOne(ctx, bson.M{"_id": pageID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.New(apperrors.ErrCodePageNotFound, "page %q not found", pageID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "get page %s", pageID)
	}
	return &doc.Page, nil
}

func (s *MongoStore) CreatePage(ctx context.Context, storyID string, u PageUpdate) (*story.Page, error) {
	if _, err := s.GetStory(ctx, storyID); err != nil {
		return nil, err
	}
	doc := pageDoc{
		Page:      story.Page{ID: uuid.NewString(), StoryID: storyID},
		CreatedAt: time.Now().UTC(),
	}
	applyPageUpdate(&doc.Page, u)
	if _, err := s.pages.InsertOne(ctx, doc); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "create page")
	}
	return &doc.Page, nil
}

func (s *MongoStore) UpdatePage(ctx context.Context, pageID string, u PageUpdate) (*story.Page, error) {
	set := bson.M{}
	if u.Content != nil {
		set["content"] = *u.Content
	}
	if u.IsEnding != nil {
		set["is_ending"] = *u.IsEnding
	}
	if u.EndingLabel != nil {
		set["ending_label"] = *u.EndingLabel
	}
	if u.Illustration != nil {
		set["illustration"] = *u.Illustration
	}
	if len(set) == 0 {
		return s.GetPage(ctx, pageID)
	}

	var doc pageDoc
	err := s.pages.FindOneAndUpdate(ctx,
		bson.M{"_id": pageID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.New(apperrors.ErrCodePageNotFound, "page %q not found", pageID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "update page %s", pageID)
	}
	return &doc.Page, nil
}

func (s *MongoStore) DeletePage(ctx context.Context, pageID string) error {
	res, err := s.pages.DeleteOne(ctx, bson.M{"_id": pageID})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistence, err, "delete page %s", pageID)
	}
	if res.DeletedCount == 0 {
		return apperrors.New(apperrors.ErrCodePageNotFound, "page %q not found", pageID)
	}
	if _, err := s.choices.DeleteMany(ctx, bson.M{"page_id": pageID}); err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistence, err, "cascade choices of page %s", pageID)
	}
	return nil
}

func (s *MongoStore) ListChoicesForPage(ctx context.Context, pageID string) ([]story.Choice, error) {
	cur, err := s.choices.Find(ctx, bson.M{"page_id": pageID}, creationOrder)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "list choices of page %s", pageID)
	}
	var docs []choiceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "decode choices of page %s", pageID)
	}
	out := make([]story.Choice, len(docs))
	for i, d := range docs {
		out[i] = d.Choice
	}
	return out, nil
}

func (s *MongoStore) CreateChoice(ctx context.Context, pageID, text, targetPageID string) (*story.Choice, error) {
	if err := apperrors.ValidateChoiceText(text); err != nil {
		return nil, err
	}
	if _, err := s.GetPage(ctx, pageID); err != nil {
		return nil, err
	}
	if targetPageID != "" {
		if _, err := s.GetPage(ctx, targetPageID); err != nil {
			return nil, err
		}
	}
	doc := choiceDoc{
		Choice:    story.Choice{ID: uuid.NewString(), PageID: pageID, Text: text, TargetPageID: targetPageID},
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.choices.InsertOne(ctx, doc); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "create choice")
	}
	return &doc.Choice, nil
}

func (s *MongoStore) UpdateChoice(ctx context.Context, choiceID string, u ChoiceUpdate) (*story.Choice, error) {
	set := bson.M{}
	if u.Text != nil {
		if err := apperrors.ValidateChoiceText(*u.Text); err != nil {
			return nil, err
		}
		set["text"] = *u.Text
	}
	if u.TargetPageID != nil {
		set["target_page_id"] = *u.TargetPageID
	}
	if u.Condition != nil {
		set["condition"] = *u.Condition
	}
	if len(set) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "no choice fields to update")
	}

	var doc choiceDoc
	err := s.choices.FindOneAndUpdate(ctx,
		bson.M{"_id": choiceID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.New(apperrors.ErrCodeChoiceNotFound, "choice %q not found", choiceID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "update choice %s", choiceID)
	}
	return &doc.Choice, nil
}

func (s *MongoStore) DeleteChoice(ctx context.Context, choiceID string) error {
	res, err := s.choices.DeleteOne(ctx, bson.M{"_id": choiceID})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodePersistence, err, "delete choice %s", choiceID)
	}
	if res.DeletedCount == 0 {
		return apperrors.New(apperrors.ErrCodeChoiceNotFound, "choice %q not found", choiceID)
	}
	return nil
}

func (s *MongoStore) GetParty(ctx context.Context, partyID string) (*party.Party, error) {
	var p party.Party
	err := s.parties.FindOne(ctx, bson.M{"_id": partyID}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, apperrors.New(apperrors.ErrCodePartyNotFound, "party %q not found", partyID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "get party %s", partyID)
	}
	return &p, nil
}

func (s *MongoStore) CreateParty(ctx context.Context, userID, storyID string) (*party.Party, error) {
	if _, err := s.GetStory(ctx, storyID); err != nil {
		return nil, err
	}
	p := party.Party{
		ID:        uuid.NewString(),
		UserID:    userID,
		StoryID:   storyID,
		StartDate: time.Now().UTC(),
	}
	if _, err := s.parties.InsertOne(ctx, p); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "create party")
	}
	return &p, nil
}

func (s *MongoStore) UpdateParty(ctx context.Context, partyID string, u party.Update) (*party.Party, error) {
	if len(u.AppendPath) > 0 {
		_, err := s.parties.UpdateOne(ctx,
			bson.M{"_id": partyID},
			bson.M{"$push": bson.M{"path": bson.M{"$each": u.AppendPath}}},
		)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "append path of party %s", partyID)
		}
	}
	if u.EndDate != nil {
		// end_date is set exactly once; the filter makes the write a no-op
		// on any later arrival at an ending.
		_, err := s.parties.UpdateOne(ctx,
			bson.M{"_id": partyID, "end_date": nil},
			bson.M{"$set": bson.M{"end_date": *u.EndDate, "ending_page_id": u.EndingPageID}},
		)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodePersistence, err, "end party %s", partyID)
		}
	}
	return s.GetParty(ctx, partyID)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ensure MongoStore implements Store.
var _ Store = (*MongoStore)(nil)
